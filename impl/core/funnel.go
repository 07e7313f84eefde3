package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"funnelgram/entity"
)

// CreateFunnel stores a new funnel. New funnels start inactive; activation
// goes through SetFunnelActive which gates on graph validation.
func (c *Core) CreateFunnel(ctx context.Context, f *entity.Funnel) (*entity.Funnel, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	if f.Name == "" {
		return nil, fmt.Errorf("funnel has no name")
	}

	f.ID = uuid.NewString()
	f.Active = false
	f.CreatedAt = time.Now()
	remapStepIDs(f)

	if err := c.repo.SaveFunnel(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFunnel replaces funnel metadata, keeping the stored step graph.
func (c *Core) UpdateFunnel(ctx context.Context, id, name, completionMessage string) (*entity.Funnel, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	f, err := c.repo.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("funnel %s not found", id)
	}

	if name != "" {
		f.Name = name
	}
	f.CompletionMessage = completionMessage

	if err := c.repo.SaveFunnel(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// GetFunnel retrieves a funnel by ID.
func (c *Core) GetFunnel(ctx context.Context, id string) (*entity.Funnel, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	f, err := c.repo.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("funnel %s not found", id)
	}
	return f, nil
}

// ListFunnels returns every funnel of a bot.
func (c *Core) ListFunnels(ctx context.Context, botID string) ([]entity.Funnel, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListFunnels(ctx, botID)
}

// DeleteFunnel removes a funnel. Active funnels must be deactivated first so
// running conversations drain through the vanished-funnel path knowingly.
func (c *Core) DeleteFunnel(ctx context.Context, id string) error {
	if c.repo == nil {
		return fmt.Errorf("repository is not set")
	}

	f, err := c.repo.GetFunnel(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if f.Active {
		return fmt.Errorf("funnel %s is active, deactivate it first", id)
	}
	return c.repo.DeleteFunnel(ctx, id)
}

// SaveFunnelSteps replaces the whole step graph of a funnel in one write.
// Editor-issued temporary identifiers are remapped to stable ones, with every
// cross reference rewritten. An active funnel must stay valid.
func (c *Core) SaveFunnelSteps(ctx context.Context, funnelID, firstStepID string, steps []entity.Step) (*entity.Funnel, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	f, err := c.repo.GetFunnel(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("funnel %s not found", funnelID)
	}

	f.Steps = steps
	f.FirstStepID = firstStepID
	remapStepIDs(f)

	if err := checkUniqueIDs(f.Steps); err != nil {
		return nil, err
	}
	if f.Active {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("invalid funnel graph: %w", err)
		}
	}

	if err := c.repo.SaveFunnel(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// SetFunnelActive toggles a funnel. Activation validates the graph; an
// invalid funnel can be saved as a draft but never switched on.
func (c *Core) SetFunnelActive(ctx context.Context, id string, active bool) (*entity.Funnel, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}

	f, err := c.repo.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("funnel %s not found", id)
	}

	if active {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("cannot activate: %w", err)
		}
	}
	f.Active = active

	if err := c.repo.SaveFunnel(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// remapStepIDs assigns stable identifiers to steps carrying none or an
// editor temp ID, then rewrites every reference. Two passes: the map must be
// complete before any edge is rewritten, forward references included.
func remapStepIDs(f *entity.Funnel) {
	idMap := make(map[string]string)
	for i := range f.Steps {
		s := &f.Steps[i]
		if s.ID == "" || strings.HasPrefix(s.ID, "temp_") || strings.HasPrefix(s.ID, "tmp_") {
			newID := uuid.NewString()
			if s.ID != "" {
				idMap[s.ID] = newID
			}
			s.ID = newID
		}
	}
	if len(idMap) == 0 {
		return
	}

	remap := func(ref *string) {
		if newID, ok := idMap[*ref]; ok {
			*ref = newID
		}
	}

	remap(&f.FirstStepID)
	for i := range f.Steps {
		s := &f.Steps[i]
		remap(&s.NextStepID)
		remap(&s.TrueStepID)
		remap(&s.FalseStepID)
		remap(&s.SubTrueStepID)
		remap(&s.SubFalseStepID)
		if s.Quiz != nil {
			for j := range s.Quiz.Options {
				remap(&s.Quiz.Options[j].NextStepID)
			}
		}
		if s.ABTest != nil {
			for j := range s.ABTest.Variants {
				remap(&s.ABTest.Variants[j].NextStepID)
			}
		}
	}
}

func checkUniqueIDs(steps []entity.Step) error {
	ids := make(map[string]bool, len(steps))
	for i := range steps {
		if ids[steps[i].ID] {
			return fmt.Errorf("duplicate step identifier %q", steps[i].ID)
		}
		ids[steps[i].ID] = true
	}
	return nil
}
