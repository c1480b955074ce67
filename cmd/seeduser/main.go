// cmd/seeduser: operator bootstrap. Creates or updates a login and can seed
// a demo catalog with warehouse stock.
//
//	seeduser create --username admin --password 1234 --role admin
//	seeduser hash --password 1234
//	seeduser catalog
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"clawpos/internal/config"
	"clawpos/internal/infra"
	"clawpos/internal/model"
	"clawpos/internal/repository"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 12

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:  "seeduser",
		Usage: "bootstrap ClawPOS operators and demo data",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create or update an operator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "role", Value: "cashier", Usage: "admin | manager | cashier"},
					&cli.StringFlag{Name: "email"},
				},
				Action: createUser,
			},
			{
				Name:  "hash",
				Usage: "print a bcrypt hash for a password",
				Flags: []cli.Flag{&cli.StringFlag{Name: "password", Required: true}},
				Action: func(c *cli.Context) error {
					h, err := bcrypt.GenerateFromPassword([]byte(c.String("password")), bcryptCost)
					if err != nil {
						return err
					}
					fmt.Println(string(h))
					return nil
				},
			},
			{
				Name:   "catalog",
				Usage:  "insert demo products with warehouse stock (skips existing SKUs)",
				Action: seedCatalog,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("seeduser failed")
	}
}

func openDB() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return infra.NewDatabase(cfg.DatabaseURL)
}

func createUser(c *cli.Context) error {
	role := c.String("role")
	switch role {
	case "admin", "manager", "cashier":
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.String("password")), bcryptCost)
	if err != nil {
		return fmt.Errorf("bcrypt: %w", err)
	}
	db, err := openDB()
	if err != nil {
		return err
	}

	ctx := context.Background()
	username := c.String("username")

	// Inactive users must be found too, so look up without the active filter
	var u model.User
	err = db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	u.Username = username
	u.PasswordHash = string(hash)
	u.Role = role
	u.Active = true
	if email := c.String("email"); email != "" {
		u.Email = &email
	}

	if err := repository.NewUserRepository(db).Save(ctx, &u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	log.Info().Str("username", username).Str("role", role).Str("id", u.ID.String()).Msg("operator saved")
	return nil
}

type demoProduct struct {
	sku, name, category, price, cost string
	stock                            int
}

var demoCatalog = []demoProduct{
	{"COIN-10", "Coin Bundle x10", "coins", "10.00", "0.00", 1000},
	{"COIN-25", "Coin Bundle x25", "coins", "20.00", "0.00", 1000},
	{"PLUSH-PIKA", "Pikachu Plush", "plush_toy", "15.00", "6.50", 40},
	{"PLUSH-BEAR", "Teddy Bear", "plush_toy", "12.00", "5.00", 40},
	{"FIG-DRAGON", "Dragon Figurine", "figurine", "25.00", "11.00", 15},
	{"CANDY-MIX", "Candy Mix Bag", "candy", "3.00", "1.20", 200},
	{"KEY-CHAIN", "Claw Keychain", "stationery", "4.50", "1.50", 60},
}

func seedCatalog(_ *cli.Context) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	ctx := context.Background()
	products := repository.NewProductRepository(db)
	inventory := repository.NewInventoryRepository(db)

	created := 0
	for _, d := range demoCatalog {
		var n int64
		if err := db.WithContext(ctx).Model(&model.Product{}).Where("sku = ?", d.sku).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		sku := d.sku
		p := &model.Product{
			Name:     d.name,
			Category: d.category,
			Price:    decimal.RequireFromString(d.price),
			Cost:     decimal.RequireFromString(d.cost),
			SKU:      &sku,
			Active:   true,
		}
		if err := products.Create(ctx, p); err != nil {
			return fmt.Errorf("create %s: %w", d.sku, err)
		}
		if err := inventory.Create(ctx, &model.Inventory{
			ProductID:    p.ID,
			Location:     model.LocationWarehouse,
			CurrentStock: d.stock,
			MinStock:     5,
			MaxStock:     d.stock * 2,
		}); err != nil {
			return fmt.Errorf("stock %s: %w", d.sku, err)
		}
		created++
	}
	log.Info().Int("created", created).Int("catalog", len(demoCatalog)).Msg("demo catalog seeded")
	return nil
}
