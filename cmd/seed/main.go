// Command main runs the database seeder for Thirty Day.
package main

import (
	"flag"
	"log"

	"thirtyday/internal/config"
	"thirtyday/internal/database"
	"thirtyday/internal/seed"
)

func main() {
	opts := seed.DefaultOptions

	numUsers := flag.Int("users", 50, "Number of users to create")
	flag.IntVar(&opts.Density, "density", opts.Density, "Percent of user pairs that get a connection")
	flag.IntVar(&opts.ChallengesPerUser, "challenges", opts.ChallengesPerUser, "Challenges per user")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fixture := flag.String("fixture", "", "Apply a YAML fixture instead of random data")
	flag.Int64Var(&opts.RandomSeed, "seed", 0, "Random seed (0 picks one)")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Generate rows without writing them")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	if *fixture != "" {
		log.Printf("Applying fixture: %s (ignoring other flags)\n", *fixture)
	} else {
		log.Printf("Target: %d users, density=%d%%, %d challenges each, clean=%v\n",
			*numUsers, opts.Density, opts.ChallengesPerUser, *shouldClean)
	}

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

	s := seed.NewSeeder(db, opts)

	if *fixture != "" {
		fx, err := seed.LoadFixtureFile(*fixture)
		if err != nil {
			log.Fatalf("❌ Fixture load failed: %v", err)
		}
		if err := s.ApplyFixture(fx); err != nil {
			log.Fatalf("❌ Fixture apply failed: %v", err)
		}
		log.Printf("✨ Fixture applied: %d users, %d connections, %d challenges",
			len(fx.Users), len(fx.Connections), len(fx.Challenges))
		return
	}

	if *shouldClean && !opts.DryRun {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	users, err := s.SeedSocialMesh(*numUsers)
	if err != nil {
		log.Fatalf("❌ User seeding failed: %v", err)
	}
	challenges, err := s.SeedChallenges(users, opts.ChallengesPerUser)
	if err != nil {
		log.Fatalf("❌ Challenge seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d users, %d challenges.", len(users), len(challenges))
}
