package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"tableservice-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxRange caps one summary query.
const maxRange = 366 * 24 * time.Hour

// Repository abstracts data access for reporting. Implementations must
// filter by business; calls.MemoryRepo and calls.PostgresRepo satisfy it.
type Repository interface {
	ListByBusiness(ctx context.Context, businessID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.BusinessID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > maxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByBusiness(ctx, req.BusinessID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{BusinessID: req.BusinessID, StaffID: req.StaffID, Range: req.Range}
	var response, total mean
	staff := map[string]*StaffSummary{}
	staffResponse := map[string]*mean{}

	for _, c := range rows {
		if req.StaffID != "" && c.StaffID != req.StaffID {
			continue
		}
		out.TotalCalls++
		switch c.Status {
		case calls.StatusPending:
			out.PendingCalls++
		case calls.StatusAcknowledged:
			out.AcknowledgedCalls++
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusCancelled:
			out.CancelledCalls++
		}

		ss, ok := staff[c.StaffID]
		if !ok {
			ss = &StaffSummary{StaffID: c.StaffID}
			staff[c.StaffID] = ss
			staffResponse[c.StaffID] = &mean{}
		}
		ss.Calls++
		if c.Status == calls.StatusCompleted {
			ss.CompletedCalls++
		}

		m := c.Metrics()
		if m.ResponseSeconds != nil {
			response.add(*m.ResponseSeconds)
			staffResponse[c.StaffID].add(*m.ResponseSeconds)
			if *m.ResponseSeconds > out.MaxResponseSeconds {
				out.MaxResponseSeconds = *m.ResponseSeconds
			}
		}
		if m.TotalSeconds != nil {
			total.add(*m.TotalSeconds)
		}
	}

	out.AverageResponseSeconds = response.value()
	out.AverageTotalSeconds = total.value()

	for id, ss := range staff {
		ss.AverageResponseSeconds = staffResponse[id].value()
		out.ByStaff = append(out.ByStaff, *ss)
	}
	sort.Slice(out.ByStaff, func(i, j int) bool { return out.ByStaff[i].StaffID < out.ByStaff[j].StaffID })
	return out, nil
}
