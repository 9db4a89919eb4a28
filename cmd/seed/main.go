// Command main runs the database seeder for Blogger.
package main

import (
	"context"
	"flag"
	"log"

	"blogger/internal/auth"
	"blogger/internal/blob"
	"blogger/internal/config"
	"blogger/internal/database"
	"blogger/internal/media"
	"blogger/internal/repository"
	"blogger/internal/seed"
	"blogger/internal/service"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 20, "Number of users to create")
	postsPerUser := flag.Int("posts", 5, "Number of posts per user")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible content (0 = time based)")
	flag.Parse()

	log.Printf("Target: %d users, %d posts each, clean=%v", *numUsers, *postsPerUser, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	blobs, err := blob.NewFilesystemStore(cfg.BlobDir, cfg.BlobPublicBaseURL)
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}

	// Change events are not published; live views pick seeded data up on their next load.
	profileRepo := repository.NewProfileRepository(db, nil)
	postRepo := repository.NewPostRepository(db, nil)
	provider := auth.NewProvider(db, nil, profileRepo, cfg.JWTSecret)

	s := seed.NewSeeder(db, provider,
		service.NewProfileService(profileRepo, blobs, provider,
			media.NewAvatarProcessor(cfg.AvatarMaxUploadMB, cfg.AvatarFormat)),
		service.NewPostService(postRepo, profileRepo, provider),
	)

	ctx := context.Background()
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if _, err := s.Run(ctx, seed.Options{Users: *numUsers, PostsPerUser: *postsPerUser, Seed: *randSeed}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
}
