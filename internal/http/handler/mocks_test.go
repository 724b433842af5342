package handler_test

import (
	"context"

	"trackio.app/trackio/internal/service"
)

type mockHeartbeatService struct {
	ingestFn    func(ctx context.Context, apiKey string, body []byte) (int, error)
	summariesFn func(ctx context.Context, apiKey, from, to string) (*service.SummaryReport, error)
}

func (m *mockHeartbeatService) Ingest(ctx context.Context, apiKey string, body []byte) (int, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, apiKey, body)
	}
	return 0, nil
}

func (m *mockHeartbeatService) Summaries(ctx context.Context, apiKey, from, to string) (*service.SummaryReport, error) {
	if m.summariesFn != nil {
		return m.summariesFn(ctx, apiKey, from, to)
	}
	return &service.SummaryReport{}, nil
}
