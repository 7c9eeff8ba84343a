// Command seed-db loads the product catalog, a demo customer, an
// administrator, and their API keys.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/account"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	adminAPIKey  string
	pepper       string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "customer API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&opts.adminAPIKey, "admin-api-key", "", "admin API key to seed (or STORE_SEED_ADMIN_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.fromEnv()
	if err := opts.validate(); err != nil {
		lg.Fatal("Invalid options", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func (o *options) fromEnv() {
	envDefault(&o.databaseURL, "DATABASE_URL")
	envDefault(&o.apiKey, "STORE_SEED_API_KEY")
	envDefault(&o.adminAPIKey, "STORE_SEED_ADMIN_API_KEY")
	envDefault(&o.pepper, "STORE_API_KEY_PEPPER")
}

func envDefault(v *string, name string) {
	if *v == "" {
		*v = os.Getenv(name)
	}
}

func (o *options) validate() error {
	switch {
	case o.databaseURL == "":
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	case o.apiKey == "":
		return errors.New("API key is required: set --api-key or STORE_SEED_API_KEY")
	case o.pepper == "":
		return errors.New("pepper is required: set --api-key-pepper or STORE_API_KEY_PEPPER")
	}
	return nil
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data, err := os.ReadFile(opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	s := postgres.NewSeeder(pool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range products {
		g.Go(func() error {
			if err := s.UpsertProduct(gctx, p); err != nil {
				return err
			}
			lg.Info("Upserted product", zap.Int64("id", p.ID), zap.String("name", p.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := s.SyncProductSequence(ctx); err != nil {
		return err
	}

	users := []struct {
		account account.Account
		key     string
		scopes  []string
	}{
		{
			account: account.Account{ID: "demo", Name: "Demo Customer", Email: "demo@example.com", Phone: "021 555 0100"},
			key:     opts.apiKey,
		},
		{
			account: account.Account{ID: "admin", Name: "Shop Admin", Email: "admin@example.com"},
			key:     opts.adminAPIKey,
			scopes:  []string{auth.ScopeAdmin},
		},
	}
	for _, u := range users {
		if u.key == "" {
			lg.Info("No API key given, skipping user", zap.String("user", u.account.ID))
			continue
		}
		if err := s.UpsertUser(ctx, u.account); err != nil {
			return err
		}
		if err := s.UpsertAPIKey(ctx, auth.APIKeyInfo{
			ID:      u.account.ID + "-key",
			KeyHash: auth.HashKey([]byte(opts.pepper), u.key),
			UserID:  u.account.ID,
			Name:    u.account.Name + " key",
			Scopes:  u.scopes,
		}); err != nil {
			return err
		}
		lg.Info("Upserted user", zap.String("user", u.account.ID), zap.Strings("scopes", u.scopes))
	}
	return nil
}

// parseProducts decodes the catalog fixture: an array of
// {id, name, price, discountPercent, category, imageUrl}.
func parseProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Int64()
			case "name":
				p.Name, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					p.Price, err = decimal.NewFromString(s)
				}
			case "discountPercent":
				p.DiscountPercent, err = d.Int()
			case "category":
				p.Category, err = d.Str()
			case "imageUrl":
				p.ImageURL, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if p.ID <= 0 || p.Name == "" {
			return errors.Errorf("product %q: id and name are required", p.Name)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}
