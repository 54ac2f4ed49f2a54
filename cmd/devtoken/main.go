// Command devtoken mints HS256 access tokens for local development and,
// when MongoDB is configured, registers the user in the directory so the
// user can be added as a collaborator by username or email.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/codecollab/collab-server/internal/config"
	"github.com/codecollab/collab-server/internal/database"
	"github.com/codecollab/collab-server/internal/models"
	"github.com/codecollab/collab-server/internal/tokens"
	"github.com/codecollab/collab-server/internal/users"
	"github.com/codecollab/collab-server/pkg/logger"
)

func main() {
	sub := flag.String("sub", "", "subject (stable user id)")
	username := flag.String("username", "", "preferred username")
	email := flag.String("email", "", "email address")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_ACCESS_TOKEN_TTL)")
	register := flag.Bool("register", true, "upsert the user into MongoDB when MONGODB_URI is set")
	plain := flag.Bool("plain", false, "print only the token")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	if *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -sub <id> [-username u] [-email e] [-name n] [-ttl 1h]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		logger.Fatalf("JWT_SECRET is not set")
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.JWT.AccessTokenTTL
	}

	u := &models.User{Sub: *sub, Username: *username, Email: *email, Name: *name}
	token, err := tokens.GenerateAccessToken(cfg.JWT.Secret, u, lifetime)
	if err != nil {
		logger.Fatalf("failed to sign token: %v", err)
	}

	registered := "no"
	if *register && cfg.MongoDB.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.Timeout+5*time.Second)
		defer cancel()
		client, err := database.Connect(ctx, database.MongoOptions{URI: cfg.MongoDB.URI, Timeout: cfg.MongoDB.Timeout})
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		svc := users.NewService(users.NewMongoUserRepository(client.Database(cfg.MongoDB.Database).Collection("users")))
		if _, err := svc.UpsertFromClaims(ctx, map[string]interface{}{
			"sub": u.Sub, "preferred_username": u.Username, "email": u.Email, "name": u.Name,
		}); err != nil {
			logger.Fatalf("failed to register user: %v", err)
		}
		registered = "yes"
	}

	if *plain {
		fmt.Println(token)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Claim", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.Append([]string{"sub", u.Sub})
	table.Append([]string{"preferred_username", u.Username})
	table.Append([]string{"email", u.Email})
	table.Append([]string{"expires", time.Now().Add(lifetime).UTC().Format(time.RFC3339)})
	table.Append([]string{"registered", registered})
	table.Render()

	fmt.Println()
	color.New(color.FgGreen, color.OpBold).Println(token)
}
