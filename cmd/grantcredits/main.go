package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pictoria-server/internal/infra"
	"pictoria-server/internal/sqlinline"
)

func main() {
	var (
		idFlag        string
		emailFlag     string
		imagesFlag    int
		trainingsFlag int
		setFlag       bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to credit (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to credit")
	flag.IntVar(&imagesFlag, "images", 0, "image generation credits")
	flag.IntVar(&trainingsFlag, "trainings", 0, "model training credits")
	flag.BoolVar(&setFlag, "set", false, "overwrite the counters instead of adding to them")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if imagesFlag < 0 || trainingsFlag < 0 {
		exitWithError(errors.New("credit counts must not be negative"))
	}
	if imagesFlag == 0 && trainingsFlag == 0 && !setFlag {
		exitWithError(errors.New("nothing to grant: provide -images and/or -trainings"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "grantcredits").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	if userID == "" {
		lookupCtx, cancelLookup := context.WithTimeout(context.Background(), 5*time.Second)
		row := runner.QueryRow(lookupCtx, sqlinline.QSelectUserIDByEmail, email)
		scanErr := row.Scan(&userID)
		cancelLookup()
		if scanErr != nil {
			exitWithError(fmt.Errorf("failed to resolve user by email: %w", scanErr))
		}
	}

	query := sqlinline.QGrantCredits
	if setFlag {
		query = sqlinline.QSetCredits
	}

	grantCtx, cancelGrant := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelGrant()
	row := runner.QueryRow(grantCtx, query, userID, imagesFlag, trainingsFlag)

	var images, trainings int
	if err := row.Scan(&images, &trainings); err != nil {
		exitWithError(fmt.Errorf("failed to apply credits: %w", err))
	}

	fmt.Printf("User %s credited\n", userID)
	fmt.Printf("image_generation_count=%d\n", images)
	fmt.Printf("model_training_count=%d\n", trainings)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
