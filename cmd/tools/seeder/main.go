// Command seeder loads demo products and coupons and can mint a bearer token
// for local testing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/auth"
	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/config"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/db"
	"github.com/noah-isme/backend-blinds/internal/obs"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

var products = []catalog.Product{
	{
		ID:      "roller-classic",
		Name:    "Classic Roller Shade",
		Fabrics: []string{"LF-101", "LF-102", "BO-201"},
		Bounds:  pricing.Bounds{MinWidth: 12, MaxWidth: 96, MinHeight: 12, MaxHeight: 120},
		MotorOptions: []catalog.MotorOption{
			{Code: "manual", Label: "Manual chain"},
			{Code: "battery", Label: "Battery motor", Surcharge: 129},
			{Code: "hardwired", Label: "Hardwired motor", Surcharge: 189},
		},
		RemoteSurcharge: 35,
	},
	{
		ID:      "cellular-honeycomb",
		Name:    "Cellular Honeycomb Shade",
		Fabrics: []string{"HC-301", "HC-302"},
		Bounds:  pricing.Bounds{MinWidth: 18, MaxWidth: 84, MinHeight: 18, MaxHeight: 96},
		MotorOptions: []catalog.MotorOption{
			{Code: "manual", Label: "Cordless lift"},
			{Code: "battery", Label: "Battery motor", Surcharge: 149},
		},
		RemoteSurcharge: 35,
	},
	{
		ID:      "roman-linen",
		Name:    "Linen Roman Shade",
		Fabrics: []string{"RM-401"},
		Bounds:  pricing.Bounds{MinWidth: 20, MaxWidth: 72, MinHeight: 24, MaxHeight: 96},
		MotorOptions: []catalog.MotorOption{
			{Code: "manual", Label: "Cord lift"},
		},
	},
}

var coupons = []coupon.Coupon{
	{Code: "SPRING15", Kind: coupon.KindPercent, Value: 15},
	{Code: "TAKE25", Kind: coupon.KindAmount, Value: 25},
}

func main() {
	var (
		skipData  = flag.Bool("skip-data", false, "only mint a token")
		tokenUser = flag.String("token-user", "", "mint a bearer token for this user id")
		tokenRole = flag.String("token-role", auth.RoleCustomer, "role carried by the minted token")
		tokenTTL  = flag.Duration("token-ttl", 24*time.Hour, "lifetime of the minted token")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger("console", cfg.LogLevel, "blinds-seeder")
	ctx := context.Background()

	if !*skipData {
		if err := seed(ctx, cfg, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed")
		}
	}

	if *tokenUser != "" {
		tokens, err := auth.NewTokens(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience})
		if err != nil {
			logger.Fatal().Err(err).Msg("token signer")
		}
		raw, err := tokens.Issue(*tokenUser, *tokenRole, *tokenTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(raw)
	}
}

func seed(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, nil)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(pool); err != nil {
		return err
	}
	if err := seedProducts(ctx, pool); err != nil {
		return fmt.Errorf("products: %w", err)
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return fmt.Errorf("coupons: %w", err)
	}
	logger.Info().Int("products", len(products)).Int("coupons", len(coupons)).Msg("seeding completed")
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, p := range products {
			motors, err := json.Marshal(p.MotorOptions)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `INSERT INTO products (id, name, fabrics, min_width, max_width, min_height, max_height, motor_options, remote_surcharge)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, fabrics = EXCLUDED.fabrics,
    min_width = EXCLUDED.min_width, max_width = EXCLUDED.max_width,
    min_height = EXCLUDED.min_height, max_height = EXCLUDED.max_height,
    motor_options = EXCLUDED.motor_options, remote_surcharge = EXCLUDED.remote_surcharge, active = TRUE`,
				p.ID, p.Name, p.Fabrics, p.Bounds.MinWidth, p.Bounds.MaxWidth, p.Bounds.MinHeight, p.Bounds.MaxHeight, motors, p.RemoteSurcharge)
			if err != nil {
				return fmt.Errorf("%s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, c := range coupons {
			if err := c.Validate(); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO coupons (code, kind, value, valid_from, valid_to)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code) DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value, active = TRUE`,
				coupon.NormalizeCode(c.Code), string(c.Kind), c.Value, c.ValidFrom, c.ValidTo)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Code, err)
			}
		}
		return nil
	})
}
