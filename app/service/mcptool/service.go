package mcptool

import (
	"context"
	"encoding/json"
	"fmt"

	"carscout/app/config"
	"carscout/app/service/criteria"
	"carscout/app/service/inventory"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
)

// Service exposes the inventory search as an MCP tool over stdio, so agent
// hosts can query the same bounded search the chat assistant uses.
type Service struct {
	cfg          *config.Config
	inventorySvc *inventory.Service
	srv          *server.MCPServer
}

func New(di *do.Injector) (*Service, error) {
	s := &Service{
		cfg:          do.MustInvoke[*config.Config](di),
		inventorySvc: do.MustInvoke[*inventory.Service](di),
	}

	s.srv = server.NewMCPServer("carscout", "1.0.0")

	tool := mcp.NewTool("car_search",
		mcp.WithDescription("Search the car inventory with structured criteria. Unspecified arguments are not filtered on."),
		mcp.WithString("body_style", mcp.Description("Body style: suv, sedan, hatchback, wagon, coupe, minivan, pickup")),
		mcp.WithString("brand", mcp.Description("Car brand, matched case-insensitively")),
		mcp.WithString("fuel_type", mcp.Description("Fuel type: petrol, diesel, hybrid, electric")),
		mcp.WithNumber("seats", mcp.Description("Exact seat count")),
		mcp.WithNumber("price_from", mcp.Description("Minimum price, inclusive")),
		mcp.WithNumber("price_to", mcp.Description("Maximum price, inclusive")),
		mcp.WithNumber("year_from", mcp.Description("Minimum model year, inclusive")),
		mcp.WithNumber("year_to", mcp.Description("Maximum model year, inclusive")),
		mcp.WithNumber("limit", mcp.Description("Result count, clamped server-side")),
	)

	s.srv.AddTool(tool, s.handleCarSearch)

	return s, nil
}

func (s *Service) handleCarSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var c criteria.Criteria

	if v, ok := args["body_style"].(string); ok && v != "" {
		c.BodyStyle = &v
	}
	if v, ok := args["brand"].(string); ok && v != "" {
		c.Brand = &v
	}
	if v, ok := args["fuel_type"].(string); ok && v != "" {
		c.FuelType = &v
	}
	if v, ok := args["seats"].(float64); ok {
		seats := int(v)
		c.Seats = &seats
	}
	if v, ok := args["price_from"].(float64); ok {
		price := int64(v)
		c.PriceFrom = &price
	}
	if v, ok := args["price_to"].(float64); ok {
		price := int64(v)
		c.PriceTo = &price
	}
	if v, ok := args["year_from"].(float64); ok {
		year := int(v)
		c.YearFrom = &year
	}
	if v, ok := args["year_to"].(float64); ok {
		year := int(v)
		c.YearTo = &year
	}

	limit := s.cfg.Search.DefaultResults
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	result, err := s.inventorySvc.Search(ctx, inventory.BuildSpec(c, limit, s.cfg.Search.MaxResults))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

// Run serves the tool over stdio until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ServeStdio(s.srv)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
