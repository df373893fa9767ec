package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
)

// ProductInput holds the editable fields of a product.
type ProductInput struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Category      string  `json:"category"`
	IsCustomPrice bool    `json:"isCustomPrice"`
}

func (in ProductInput) product(id int64) *schema.Product {
	p := &schema.Product{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		Price:         in.Price,
		Category:      strings.TrimSpace(in.Category),
		IsCustomPrice: in.IsCustomPrice,
	}
	if p.IsCustomPrice {
		p.Price = 0
	}
	return p
}

// AddProduct creates a product. The category is created when it does not
// exist yet.
func (s *Service) AddProduct(ctx context.Context, in ProductInput) (*schema.Product, error) {
	p := in.product(0)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if err := ensureCategory(tx, p.Category); err != nil {
			return err
		}
		_, err := tx.Insert(p)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("product added", zap.Int64("id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct replaces the fields of an existing product. Open orders keep
// the name and price they were added with.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*schema.Product, error) {
	p := in.product(id)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.Product(id); err != nil {
			return err
		}
		if err := ensureCategory(tx, p.Category); err != nil {
			return err
		}
		return tx.Replace(p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.Product(id); err != nil {
			return err
		}
		return tx.Remove(schema.Products, id)
	})
}

func ensureCategory(tx *store.Tx, name string) error {
	if name == "" {
		return nil
	}
	_, err := tx.Category(name)
	if errors.Is(err, store.ErrNotFound) {
		_, err = tx.Insert(&schema.Category{Name: name})
	}
	return err
}

// AddCategory creates a category. Names are unique.
func (s *Service) AddCategory(ctx context.Context, name string) (*schema.Category, error) {
	cat := &schema.Category{Name: strings.TrimSpace(name)}
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if err := cat.Validate(); err != nil {
			return err
		}
		if err := checkCategoryFree(tx, cat.Name); err != nil {
			return err
		}
		_, err := tx.Insert(cat)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// RenameCategory renames a category and moves every product that referenced
// the old name to the new one.
func (s *Service) RenameCategory(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	return s.store.Update(ctx, func(tx *store.Tx) error {
		cat, err := tx.Category(oldName)
		if err != nil {
			return err
		}
		if newName == oldName {
			return nil
		}
		if err := checkCategoryFree(tx, newName); err != nil {
			return err
		}
		cat.Name = newName
		if err := tx.Replace(cat); err != nil {
			return err
		}

		products, err := tx.Products()
		if err != nil {
			return err
		}
		for i := range products {
			if products[i].Category != oldName {
				continue
			}
			products[i].Category = newName
			if err := tx.Replace(&products[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteCategory removes a category. It fails with ErrCategoryInUse while any
// product references it, leaving both the category and the products as they
// were.
func (s *Service) DeleteCategory(ctx context.Context, name string) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		cat, err := tx.Category(name)
		if err != nil {
			return err
		}
		n, err := tx.CountProductsInCategory(name)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %q is used by %d products", ErrCategoryInUse, name, n)
		}
		return tx.Remove(schema.Categories, cat.ID)
	})
}

func checkCategoryFree(tx *store.Tx, name string) error {
	_, err := tx.Category(name)
	if err == nil {
		return fmt.Errorf("%w: category %q already exists", ErrDuplicate, name)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// defaultMenu is the catalog a fresh installation starts with.
var defaultMenu = []ProductInput{
	{Name: "برجر", Price: 2500, Category: "مشاوي"},
	{Name: "بيتزا", Price: 3500, Category: "معجنات"},
	{Name: "شاورما", Price: 2000, Category: "مشاوي"},
	{Name: "كولا", Price: 500, Category: "مشروبات"},
	{Name: "عصير برتقال", Price: 1000, Category: "مشروبات"},
	{Name: "منتج بسعر مخصص", Category: "مشروبات", IsCustomPrice: true},
}

// SeedDefaults installs the default menu when the catalog is empty. It
// reports whether anything was written.
func (s *Service) SeedDefaults(ctx context.Context) (bool, error) {
	seeded := false
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		n, err := tx.Count(schema.Products)
		if err != nil || n > 0 {
			return err
		}
		for _, in := range defaultMenu {
			p := in.product(0)
			if err := ensureCategory(tx, p.Category); err != nil {
				return err
			}
			if _, err := tx.Insert(p); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		s.logger.Info("default menu installed", zap.Int("products", len(defaultMenu)))
	}
	return seeded, nil
}
