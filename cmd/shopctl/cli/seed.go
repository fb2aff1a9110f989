package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/garagedesk/garagedesk/internal/app"
	"github.com/garagedesk/garagedesk/internal/records"
)

// SeedFile is the YAML layout accepted by `shopctl seed`.
type SeedFile struct {
	Customers []SeedCustomer `yaml:"customers"`
	Products  []SeedProduct  `yaml:"products"`
}

type SeedCustomer struct {
	Name     string        `yaml:"name"`
	Email    string        `yaml:"email"`
	Phone    string        `yaml:"phone"`
	Address  string        `yaml:"address"`
	Notes    string        `yaml:"notes"`
	Vehicles []SeedVehicle `yaml:"vehicles"`
}

type SeedVehicle struct {
	Registration string `yaml:"registration"`
	Make         string `yaml:"make"`
	Model        string `yaml:"model"`
	Year         int    `yaml:"year"`
	Color        string `yaml:"color"`
	VIN          string `yaml:"vin"`
	Mileage      int    `yaml:"mileage"`
	// MOTExpiry is a YYYY-MM-DD date.
	MOTExpiry string `yaml:"mot_expiry"`
}

type SeedProduct struct {
	SKU         string `yaml:"sku"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	UnitPrice   string `yaml:"unit_price"`
}

// SeedResult counts created records.
type SeedResult struct {
	Customers int
	Vehicles  int
	Products  int
}

// LoadSeed decodes a seed document, rejecting unknown keys.
func LoadSeed(r io.Reader) (SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return SeedFile{}, fmt.Errorf("seed: decode: %w", err)
	}
	return seed, nil
}

// Seed creates every record in seed through the records service so the usual
// validation applies. It stops at the first failure.
func Seed(ctx context.Context, svc *records.Service, seed SeedFile) (SeedResult, error) {
	var res SeedResult
	for i, sc := range seed.Customers {
		customer, err := svc.CreateCustomer(ctx, records.CreateCustomerRequest{
			Name:    sc.Name,
			Email:   sc.Email,
			Phone:   sc.Phone,
			Address: sc.Address,
			Notes:   sc.Notes,
		})
		if err != nil {
			return res, fmt.Errorf("seed: customers[%d]: %w", i, err)
		}
		res.Customers++
		for j, sv := range sc.Vehicles {
			req := records.CreateVehicleRequest{
				CustomerID:   customer.ID,
				Registration: sv.Registration,
				Make:         sv.Make,
				Model:        sv.Model,
				Year:         sv.Year,
				Color:        sv.Color,
				VIN:          sv.VIN,
				Mileage:      sv.Mileage,
			}
			if sv.MOTExpiry != "" {
				d, err := time.Parse(time.DateOnly, sv.MOTExpiry)
				if err != nil {
					return res, fmt.Errorf("seed: customers[%d].vehicles[%d].mot_expiry: %w", i, j, err)
				}
				req.MOTExpiry = &d
			}
			if _, err := svc.CreateVehicle(ctx, req); err != nil {
				return res, fmt.Errorf("seed: customers[%d].vehicles[%d]: %w", i, j, err)
			}
			res.Vehicles++
		}
	}
	for i, sp := range seed.Products {
		price, err := decimal.NewFromString(sp.UnitPrice)
		if err != nil {
			return res, fmt.Errorf("seed: products[%d].unit_price: %w", i, err)
		}
		if _, err := svc.CreateProduct(ctx, records.CreateProductRequest{
			SKU:         sp.SKU,
			Name:        sp.Name,
			Description: sp.Description,
			Category:    sp.Category,
			UnitPrice:   price,
		}); err != nil {
			return res, fmt.Errorf("seed: products[%d]: %w", i, err)
		}
		res.Products++
	}
	return res, nil
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load customers, vehicles and catalog products from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := LoadSeed(f)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.StorageDriver != app.StoragePostgres {
				logger.Warn("seeding in-memory storage; records vanish when shopctl exits")
			}
			c, err := app.NewContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := Seed(cmd.Context(), c.Records, seed)
			fmt.Fprintf(cmd.OutOrStdout(), "customers: %d vehicles: %d products: %d\n", res.Customers, res.Vehicles, res.Products)
			return err
		},
	}
}
