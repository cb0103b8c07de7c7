package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/klasio/klasio-backend/internal/config"
	"github.com/klasio/klasio-backend/internal/database"
	"github.com/klasio/klasio-backend/internal/logger"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/klasio/klasio-backend/internal/repository"
	"github.com/klasio/klasio-backend/internal/service"
	"golang.org/x/term"
)

// Interactive CLI for provisioning a student account. Production accounts come
// from the platform's identity sync; this exists for local setups and demos.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	authService := service.NewAuthService(cfg, nil)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Student ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Create ────────────────────────────────────────────────────────
	hash, err := authService.HashPassword(password)
	if err != nil {
		fmt.Printf("Error hashing password: %v\n", err)
		return
	}

	student := &model.Student{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := studentRepo.Create(ctx, student); err != nil {
		fmt.Printf("Error creating student: %v\n", err)
		return
	}

	fmt.Printf("Student created with ID %d\n", student.ID)
}
