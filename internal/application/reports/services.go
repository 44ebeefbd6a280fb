package reports

import (
	"context"
	"time"

	domain "github.com/bryanwahyu/sitesafe/internal/domain/reports"
)

// StatusComplete is the only status a stored report has.
const StatusComplete = "Complete"

type Service struct {
	Repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{Repo: repo}
}

// ListItem is the row shape of GET /api/reports.
type ListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	// RiskCounts is used by the dashboard; omitted from the API listing.
	RiskCounts map[domain.Severity]int `json:"-"`
}

// List the user's reports, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]ListItem, error) {
	reps, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ListItem, 0, len(reps))
	for _, r := range reps {
		out = append(out, ListItem{
			ID:         r.ID,
			Title:      r.Title,
			CreatedAt:  r.CreatedAt,
			Summary:    r.Summary,
			Status:     StatusComplete,
			RiskCounts: r.Counts(),
		})
	}
	return out, nil
}

// Get ambil 1 report; reports of other users look missing.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Report, error) {
	r, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return r, nil
}
