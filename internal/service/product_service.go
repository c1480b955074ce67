package service

import (
	"context"
	"errors"
	"time"

	"clawpos/internal/dto"
	"clawpos/internal/infra"
	"clawpos/internal/model"
	"clawpos/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const catalogCacheKey = "catalog:products:active"

// ProductService serves the catalog the tablets cache for offline pricing.
type ProductService interface {
	Catalog(ctx context.Context) (*dto.ProductListResponse, error)
	// InvalidateCatalog drops the cached catalog after a product change.
	InvalidateCatalog(ctx context.Context)
}

type productService struct {
	repo repository.ProductRepository
	rdb  *redis.Client // nil disables caching
	ttl  time.Duration
}

func NewProductService(repo repository.ProductRepository, rdb *redis.Client, ttl time.Duration) ProductService {
	return &productService{repo: repo, rdb: rdb, ttl: ttl}
}

func (s *productService) Catalog(ctx context.Context) (*dto.ProductListResponse, error) {
	if s.rdb != nil {
		var cached dto.ProductListResponse
		err := infra.GetJSON(ctx, s.rdb, catalogCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, infra.ErrCacheMiss) {
			log.Warn().Err(err).Msg("catalog cache read failed, falling back to DB")
		}
	}

	products, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	resp := &dto.ProductListResponse{Products: make([]dto.ProductResponse, 0, len(products))}
	for i := range products {
		resp.Products = append(resp.Products, productToResponse(&products[i]))
	}

	if s.rdb != nil && s.ttl > 0 {
		if err := infra.SetJSON(ctx, s.rdb, catalogCacheKey, resp, s.ttl); err != nil {
			log.Warn().Err(err).Msg("catalog cache write failed")
		}
	}
	return resp, nil
}

func (s *productService) InvalidateCatalog(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, catalogCacheKey).Err(); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

func productToResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:       p.ID.String(),
		Name:     p.Name,
		Category: p.Category,
		Price:    p.Price,
		SKU:      p.SKU,
		Active:   p.Active,
	}
}
