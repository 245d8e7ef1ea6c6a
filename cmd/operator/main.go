package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/app/repository"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/database"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	database.SetupDatabase()
	users := repository.NewUserRepository(database.GetDB())

	switch os.Args[1] {
	case "create":
		if len(os.Args) < 4 {
			log.Fatalf("Please provide a name and an email")
		}
		role := models.ROLE_OPERATOR
		if len(os.Args) > 4 {
			role = os.Args[4]
		}
		u, err := models.CreateOperator(os.Args[2], os.Args[3], role)
		if err != nil {
			log.Fatalf("Invalid operator: %v", err)
		}
		key, err := u.IssueAPIKey()
		if err != nil {
			log.Fatalf("Failed to issue API key: %v", err)
		}
		if err := users.Create(u); err != nil {
			log.Fatalf("Failed to create operator: %v", err)
		}
		log.Printf("Operator %d (%s) created", u.ID, u.Role)
		fmt.Println(key)

	case "rotate":
		u := mustFind(users)
		key, err := u.IssueAPIKey()
		if err != nil {
			log.Fatalf("Failed to issue API key: %v", err)
		}
		if err := users.Update(u); err != nil {
			log.Fatalf("Failed to store API key: %v", err)
		}
		log.Printf("API key for operator %d rotated", u.ID)
		fmt.Println(key)

	case "revoke":
		u := mustFind(users)
		u.RevokeAPIKey()
		if err := users.Update(u); err != nil {
			log.Fatalf("Failed to revoke API key: %v", err)
		}
		log.Printf("API key for operator %d revoked", u.ID)

	case "list":
		list, err := users.List(0, 500)
		if err != nil {
			log.Fatalf("Failed to list operators: %v", err)
		}
		for _, u := range list {
			fmt.Printf("%d\t%s\t%s\t%s\t%s\tkey=%t\n", u.ID, u.Name, u.Email, u.Role, u.Status, u.HasActiveAPIKey())
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func mustFind(users repository.UserRepository) *models.User {
	if len(os.Args) < 3 {
		log.Fatalf("Please provide the operator email")
	}
	u, err := users.GetByEmail(os.Args[2])
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Fatalf("No operator with email %s", os.Args[2])
	}
	if err != nil {
		log.Fatalf("Failed to load operator: %v", err)
	}
	return u
}

func printUsage() {
	fmt.Println("Usage: go run cmd/operator/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  create NAME EMAIL [operator|admin] - create an operator and print its API key")
	fmt.Println("  rotate EMAIL                       - issue a new API key")
	fmt.Println("  revoke EMAIL                       - revoke the API key")
	fmt.Println("  list                               - list operators")
}
