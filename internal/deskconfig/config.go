package deskconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	billing "lounge-desk/internal/billing/domain"
)

// MenuCategory groups food items sold at one price.
type MenuCategory struct {
	Name  string   `yaml:"name" json:"name"`
	Price float64  `yaml:"price" json:"price"`
	Items []string `yaml:"items" json:"items"`
}

// Config defines desk configuration.
type Config struct {
	Currency     string             `yaml:"currency"`
	TickInterval string             `yaml:"tick_interval"`
	Rates        map[string]float64 `yaml:"rates"`
	Discounts    []float64          `yaml:"discounts"`
	Menu         []MenuCategory     `yaml:"menu"`
}

// Default returns the built-in desk configuration.
func Default() Config {
	return Config{
		Currency:     "INR",
		TickInterval: "60s",
		Rates: map[string]float64{
			string(billing.KindLounge):  50,
			string(billing.KindConsole): 50,
			string(billing.KindOther):   50,
		},
		Discounts: []float64{0, 5, 10, 15},
		Menu: []MenuCategory{
			{Name: "Maggi", Price: 60, Items: []string{"Classic", "Masala", "Cheese", "Vegetable", "Peanut"}},
			{Name: "Fries", Price: 80, Items: []string{"Classic Fries", "Cheese Fries", "Spicy Fries", "Sweet Fries", "Loaded Fries"}},
			{Name: "Pasta", Price: 120, Items: []string{"Spaghetti", "Penne", "Fusilli", "Mac and Cheese"}},
			{Name: "Beverages", Price: 30, Items: []string{"Water", "Juice", "Lemonade", "Tea", "Coffee"}},
			{Name: "Mojito", Price: 90, Items: []string{"Mint Mojito", "Strawberry Mojito", "Classic Mojito"}},
			{Name: "SoftDrinks", Price: 40, Items: []string{"Coke", "Sprite", "Fanta", "Pepsi"}},
			{Name: "Snacks", Price: 50, Items: []string{"Chips", "Nachos"}},
			{Name: "Milkshakes", Price: 100, Items: []string{"Chocolate", "Vanilla", "Strawberry"}},
			{Name: "Sandwich", Price: 90, Items: []string{"Veg Sandwich", "Club Sandwich"}},
		},
	}
}

// LoadConfig loads config from DESK_CONFIG yaml, then applies env overrides.
func LoadConfig() (Config, error) {
	cfg := Default()

	if path := os.Getenv("DESK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if value := os.Getenv("DESK_CURRENCY"); value != "" {
		cfg.Currency = value
	}
	if value := os.Getenv("TICK_INTERVAL"); value != "" {
		cfg.TickInterval = value
	}
	if value := os.Getenv("DESK_DISCOUNTS"); value != "" {
		discounts, err := parseFloatCSV(value)
		if err != nil {
			return cfg, fmt.Errorf("deskconfig: DESK_DISCOUNTS: %w", err)
		}
		cfg.Discounts = discounts
	}
	for _, kind := range billing.Kinds {
		key := "RATE_" + strings.ToUpper(kind.String())
		if value := os.Getenv(key); value != "" {
			rate, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return cfg, fmt.Errorf("deskconfig: %s: %w", key, err)
			}
			if cfg.Rates == nil {
				cfg.Rates = map[string]float64{}
			}
			cfg.Rates[kind.String()] = rate
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks rates, discounts, tick interval and menu.
func (c Config) Validate() error {
	if c.Currency == "" {
		return errors.New("deskconfig: currency required")
	}
	if _, err := c.Tick(); err != nil {
		return err
	}
	if _, err := c.RateCard(); err != nil {
		return err
	}
	if len(c.Discounts) == 0 {
		return errors.New("deskconfig: at least one discount option required")
	}
	for _, pct := range c.Discounts {
		if err := billing.ValidateDiscount(pct); err != nil {
			return fmt.Errorf("deskconfig: discount %v: %w", pct, err)
		}
	}
	seen := make(map[string]string)
	for _, category := range c.Menu {
		if strings.TrimSpace(category.Name) == "" {
			return errors.New("deskconfig: menu category name required")
		}
		if category.Price < 0 {
			return fmt.Errorf("deskconfig: menu category %s: negative price", category.Name)
		}
		for _, item := range category.Items {
			if strings.TrimSpace(item) == "" {
				return fmt.Errorf("deskconfig: menu category %s: empty item", category.Name)
			}
			if owner, ok := seen[item]; ok {
				return fmt.Errorf("deskconfig: menu item %q listed in %s and %s", item, owner, category.Name)
			}
			seen[item] = category.Name
		}
	}
	return nil
}

// Tick returns the station refresh interval.
func (c Config) Tick() (time.Duration, error) {
	if c.TickInterval == "" {
		return time.Minute, nil
	}
	interval, err := time.ParseDuration(c.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("deskconfig: tick interval: %w", err)
	}
	if interval <= 0 {
		return 0, errors.New("deskconfig: tick interval must be positive")
	}
	return interval, nil
}

// RateCard returns default hourly rates keyed by station kind.
func (c Config) RateCard() (map[billing.Kind]float64, error) {
	rates := make(map[billing.Kind]float64, len(c.Rates))
	for name, rate := range c.Rates {
		kind, err := billing.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("deskconfig: rates: %w", err)
		}
		if rate < 0 {
			return nil, fmt.Errorf("deskconfig: rates: %s must not be negative", name)
		}
		rates[kind] = rate
	}
	return rates, nil
}

// Price looks up the unit price of a menu item.
func (c Config) Price(item string) (float64, bool) {
	for _, category := range c.Menu {
		for _, name := range category.Items {
			if name == item {
				return category.Price, true
			}
		}
	}
	return 0, false
}

func parseFloatCSV(value string) ([]float64, error) {
	var result []float64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}
	return result, nil
}
