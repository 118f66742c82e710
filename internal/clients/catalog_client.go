// internal/clients/catalog_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"librarydesk/internal/catalog"
)

type CatalogClient struct {
	base
}

func NewCatalogClient(baseURL string, opts ...Option) *CatalogClient {
	return &CatalogClient{base: newBase("catalog", baseURL, opts...)}
}

func (c *CatalogClient) AddBook(ctx context.Context, b catalog.NewBook) (*catalog.Book, error) {
	req := map[string]interface{}{
		"title":       b.Title,
		"author":      b.Author,
		"isbn":        b.ISBN,
		"description": b.Description,
		"coverImage":  b.CoverImage,
		"totalCopies": b.TotalCopies,
	}
	var resp struct {
		Book catalog.Book `json:"book"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/books", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Book, nil
}

func (c *CatalogClient) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%s", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Resolve looks a book up by a scanned payload.
func (c *CatalogClient) Resolve(ctx context.Context, code string) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, "/api/books/scan/"+url.PathEscape(code), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}
