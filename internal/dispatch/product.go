package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
)

func (r *Router) productSizing(ctx context.Context, req Request) string {
	language := req.Message.Language
	params, _ := req.Message.Parameters.(models.ProductSizingParams)
	if strings.TrimSpace(params.ProductName) == "" {
		return lang.AskSizingProduct.For(language)
	}

	product, err := r.catalog.FindProduct(ctx, params.ProductName)
	if err != nil {
		slog.Error("Router.productSizing: catalog lookup failed", "product", params.ProductName, "error", err)
		return lang.GenericError.For(language)
	}
	if product == nil {
		slog.Warn("Router.productSizing: product not found", "product", params.ProductName)
		return lang.ProductNotFound.For(language)
	}

	missingHeight := strings.TrimSpace(params.Height) == ""
	missingFit := strings.TrimSpace(params.Fit) == ""
	if missingHeight || missingFit {
		lines := []string{lang.AskSizingDetails.Format(language, product.Title)}
		if missingHeight {
			lines = append(lines, lang.AskHeight.For(language))
		}
		if missingFit {
			lines = append(lines, lang.AskFit.For(language))
		}
		return strings.Join(lines, "\n")
	}

	chart := SizeChartFor(product.Title)
	params.ProductName = product.Title
	sized := req
	sized.Message.Parameters = params
	data := map[string]any{
		"product":    product.Title,
		"size_chart": chart,
	}
	// Charts are in centimetres; free-form heights are passed through as given.
	if cm := models.ParseHeightCM(params.Height); cm > 0 {
		data["height_cm"] = cm
	}
	slog.Info("Router.productSizing: generating recommendation", "product", product.Title, "chart", chart.ProductType)
	return r.answer(ctx, sized, data)
}

func (r *Router) restock(ctx context.Context, req Request) string {
	language := req.Message.Language
	params, _ := req.Message.Parameters.(models.RestockParams)
	if strings.TrimSpace(params.ProductName) == "" {
		return lang.AskRestockProduct.For(language)
	}

	product, err := r.catalog.FindProduct(ctx, params.ProductName)
	if err != nil {
		slog.Error("Router.restock: catalog lookup failed", "product", params.ProductName, "error", err)
		return lang.GenericError.For(language)
	}
	if product == nil {
		slog.Warn("Router.restock: product not found", "product", params.ProductName)
		return lang.ProductNotFound.For(language)
	}
	if product.InStock() {
		slog.Info("Router.restock: product in stock", "product", product.Title)
		return lang.ProductAvailable.Format(language, product.Title)
	}

	email := strings.TrimSpace(params.Email)
	if email == "" {
		return lang.AskRestockEmail.Format(language, product.Title)
	}
	res, err := r.customers.CreateCustomer(ctx, email)
	if err != nil {
		slog.Error("Router.restock: failed to register customer", "product", product.Title, "error", err)
		return lang.RetryError.For(language)
	}
	slog.Info("Router.restock: registered for restock notice", "product", product.Title, "customer", res)
	return lang.RestockRegistered.Format(language, product.Title)
}
