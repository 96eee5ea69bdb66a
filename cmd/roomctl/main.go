package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ezeslucky/drawio/internal/auth"
	"github.com/ezeslucky/drawio/internal/config"
	"github.com/ezeslucky/drawio/internal/models"
	"github.com/ezeslucky/drawio/internal/storage"
)

// roomctl manages rooms and tokens directly against the database, for
// bootstrapping a server without going through the HTTP API.
func main() {
	createRoom := flag.String("create-room", "", "Create a room with the given name and print its id")
	mintToken := flag.String("mint-token", "", "Issue a token for the given user id")
	listRooms := flag.Bool("list-rooms", false, "List all rooms")
	flag.Parse()

	if err := run(*createRoom, *mintToken, *listRooms); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(createRoom, mintToken string, listRooms bool) error {
	cfg, err := config.Load(true)
	if err != nil {
		return err
	}

	switch {
	case createRoom != "":
		store, err := storage.NewBboltStorage(cfg.DBFile)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		room := models.Room{
			ID:        uuid.NewString(),
			Name:      createRoom,
			CreatedBy: "roomctl",
			CreatedAt: time.Now().Unix(),
		}
		if err := store.UpsertRoom(room); err != nil {
			return err
		}
		fmt.Printf("Room created: %s (%s)\n", room.ID, room.Name)

	case mintToken != "":
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required to mint tokens")
		}
		authService, err := auth.NewAuthService(context.Background(), auth.Config{
			Secret:      cfg.JWTSecret,
			TokenExpiry: cfg.TokenExpiry,
		})
		if err != nil {
			return err
		}
		token, err := authService.Issue(mintToken, "")
		if err != nil {
			return err
		}
		fmt.Println(token)

	case listRooms:
		store, err := storage.NewBboltStorage(cfg.DBFile)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rooms, err := store.ListRooms()
		if err != nil {
			return err
		}
		for _, room := range rooms {
			fmt.Printf("%s  %s  (created by %s)\n", room.ID, room.Name, room.CreatedBy)
		}

	default:
		flag.Usage()
		os.Exit(1)
	}

	return nil
}
