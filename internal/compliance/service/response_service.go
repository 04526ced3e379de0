package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"go.uber.org/zap"
)

// ResponseService ingests checklist answers. Legacy mode patches the item
// blob directly; dynamic-form mode resolves {field_id, value} pairs into
// typed TaskFieldResponses. Both paths maintain the parent checklist's
// counters and status inside the same transaction.
type ResponseService struct {
	repos   *repository.Repositories
	defects *DefectService
	log     *zap.Logger
}

func NewResponseService(repos *repository.Repositories, defects *DefectService, log *zap.Logger) *ResponseService {
	return &ResponseService{repos: repos, defects: defects, log: log}
}

// FieldSubmission is one answer in a dynamic-form submission.
type FieldSubmission struct {
	FieldID string          `json:"field_id" binding:"required"`
	Value   json.RawMessage `json:"value" binding:"required"`
}

// validatedAnswer is a submission that survived schema validation.
type validatedAnswer struct {
	field      *entity.TaskField
	rules      *entity.ValidationRules
	normalized json.RawMessage
	observed   string
	numeric    *float64
}

// SubmitFieldResponses validates and persists a set of answers for one
// item, atomically: either every supplied field is persisted or none.
// Defect promotion and completion bookkeeping run in the same transaction.
func (s *ResponseService) SubmitFieldResponses(ctx context.Context, orgID, userID, itemID string, subs []FieldSubmission) (*entity.ChecklistItem, error) {
	if len(subs) == 0 {
		ve := NewValidationError()
		ve.Add("responses", "at least one field response is required")
		return nil, ve
	}

	var result *entity.ChecklistItem
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		item, err := tx.Checklist.FindItemForUpdate(ctx, itemID)
		if err != nil {
			return mapRepoErr(err)
		}
		checklist, err := tx.Checklist.FindForUpdate(ctx, item.ChecklistID)
		if err != nil {
			return mapRepoErr(err)
		}
		if checklist.OrganizationID != orgID {
			return fmt.Errorf("checklist %s: %w", checklist.ID, ErrPermissionDenied)
		}
		if checklist.Status == entity.ChecklistStatusCompleted {
			return fmt.Errorf("checklist %s is completed: %w", checklist.ID, ErrConflict)
		}

		fields, err := tx.Template.FieldsForTask(ctx, item.TaskID)
		if err != nil {
			return mapRepoErr(err)
		}
		fieldByID := make(map[string]*entity.TaskField, len(fields))
		for i := range fields {
			fieldByID[fields[i].ID] = &fields[i]
		}

		recorded, err := tx.Checklist.ListResponses(ctx, itemID)
		if err != nil {
			return mapRepoErr(err)
		}
		// answers maps field id to the recorded string form; show_if
		// guards evaluate against answers already on the item.
		answers := make(map[string]string, len(recorded))
		for i := range recorded {
			answers[recorded[i].TaskFieldID] = recorded[i].StringValue()
		}

		ve := NewValidationError()
		validated := make([]validatedAnswer, 0, len(subs))
		for _, sub := range subs {
			field, ok := fieldByID[sub.FieldID]
			if !ok {
				ve.Add(sub.FieldID, "field does not belong to this item's task")
				continue
			}
			visible, err := fieldVisible(field, answers)
			if err != nil {
				return fmt.Errorf("field %s show_if: %w", field.ID, ErrFatal)
			}
			if !visible {
				ve.Add(field.Label, "field is hidden by its show_if condition")
				continue
			}

			normalized, observed, numeric, msg, err := coerceValue(field, sub.Value)
			if err != nil {
				return err // corrupt template, ErrFatal
			}
			if msg != "" {
				ve.Add(field.Label, msg)
				continue
			}

			rules, err := field.Rules()
			if err != nil {
				return fmt.Errorf("field %s rules: %w", field.ID, ErrFatal)
			}
			if msg := applyRules(rules, observed, numeric); msg != "" {
				ve.Add(field.Label, msg)
				continue
			}
			validated = append(validated, validatedAnswer{
				field:      field,
				rules:      rules,
				normalized: normalized,
				observed:   observed,
				numeric:    numeric,
			})
		}
		if !ve.Empty() {
			return ve
		}

		now := time.Now()
		for _, v := range validated {
			resp := &entity.TaskFieldResponse{
				ID:              uuid.New().String(),
				ChecklistItemID: item.ID,
				TaskFieldID:     v.field.ID,
				Value:           v.normalized,
				SubmittedBy:     userID,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.Checklist.UpsertResponse(ctx, resp); err != nil {
				return mapRepoErr(err)
			}
			answers[v.field.ID] = v.observed
		}

		// Promotion runs after the responses are staged; its failures are
		// logged inside Promote and never abort the ingest.
		for _, v := range validated {
			s.defects.Promote(ctx, tx, PromoteInput{
				Checklist: checklist,
				Item:      item,
				Field:     v.field,
				Rules:     v.rules,
				Observed:  v.observed,
				Numeric:   v.numeric,
				UserID:    userID,
				PhotoURL:  item.PhotoURL,
			})
		}

		// An item completes when every visible required field has an
		// answer, visibility judged against the updated answer set.
		complete := true
		for i := range fields {
			f := &fields[i]
			if !f.IsRequired {
				continue
			}
			visible, err := fieldVisible(f, answers)
			if err != nil {
				return fmt.Errorf("field %s show_if: %w", f.ID, ErrFatal)
			}
			if visible {
				if _, answered := answers[f.ID]; !answered {
					complete = false
					break
				}
			}
		}

		if complete && !item.IsCompleted {
			item.IsCompleted = true
			item.CompletedAt = &now
			item.CompletedBy = userID
		}
		item.UpdatedAt = now
		if err := tx.Checklist.UpdateItem(ctx, item); err != nil {
			return mapRepoErr(err)
		}

		if err := recountChecklist(ctx, tx, checklist, userID, now); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PatchItemRequest is the legacy per-item submission.
type PatchItemRequest struct {
	Notes       *string      `json:"notes"`
	ItemData    entity.JSONB `json:"item_data"`
	PhotoURL    *string      `json:"photo_url"`
	IsCompleted *bool        `json:"is_completed"`
}

// PatchItem applies a legacy-mode submission: free-form item data, notes,
// photo, and an explicit completion flag.
func (s *ResponseService) PatchItem(ctx context.Context, orgID, userID, itemID string, req *PatchItemRequest) (*entity.ChecklistItem, error) {
	var result *entity.ChecklistItem
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		item, err := tx.Checklist.FindItemForUpdate(ctx, itemID)
		if err != nil {
			return mapRepoErr(err)
		}
		checklist, err := tx.Checklist.FindForUpdate(ctx, item.ChecklistID)
		if err != nil {
			return mapRepoErr(err)
		}
		if checklist.OrganizationID != orgID {
			return fmt.Errorf("checklist %s: %w", checklist.ID, ErrPermissionDenied)
		}
		if checklist.Status == entity.ChecklistStatusCompleted {
			return fmt.Errorf("checklist %s is completed: %w", checklist.ID, ErrConflict)
		}
		if req.IsCompleted != nil && *req.IsCompleted && item.IsCompleted {
			return fmt.Errorf("item %s already completed: %w", itemID, ErrConflict)
		}

		now := time.Now()
		if req.Notes != nil {
			item.Notes = *req.Notes
		}
		if req.ItemData != nil {
			item.ItemData = req.ItemData
		}
		if req.PhotoURL != nil {
			item.PhotoURL = *req.PhotoURL
		}
		if req.IsCompleted != nil {
			item.IsCompleted = *req.IsCompleted
			if *req.IsCompleted {
				item.CompletedAt = &now
				item.CompletedBy = userID
			} else {
				item.CompletedAt = nil
				item.CompletedBy = ""
			}
		}
		item.UpdatedAt = now
		if err := tx.Checklist.UpdateItem(ctx, item); err != nil {
			return mapRepoErr(err)
		}

		if err := recountChecklist(ctx, tx, checklist, userID, now); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ItemDetail is one checklist item with its recorded field responses.
type ItemDetail struct {
	*entity.ChecklistItem
	Responses []entity.TaskFieldResponse `json:"responses"`
}

// GetItem loads a single checklist item with its responses.
func (s *ResponseService) GetItem(ctx context.Context, orgID, itemID string) (*ItemDetail, error) {
	item, err := s.repos.Checklist.FindItem(ctx, itemID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	checklist, err := s.repos.Checklist.FindByID(ctx, item.ChecklistID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if checklist.OrganizationID != orgID {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrPermissionDenied)
	}
	responses, err := s.repos.Checklist.ListResponses(ctx, itemID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return &ItemDetail{ChecklistItem: item, Responses: responses}, nil
}

// ChecklistDetail is a checklist with its items and, per task, the dynamic
// field schema the client renders.
type ChecklistDetail struct {
	*entity.Checklist
	FieldSchema map[string][]entity.TaskField `json:"field_schema"`
}

// GetChecklist loads a checklist with items, responses and the per-task
// field schema.
func (s *ResponseService) GetChecklist(ctx context.Context, orgID, checklistID string) (*ChecklistDetail, error) {
	checklist, err := s.repos.Checklist.FindByIDWithItems(ctx, checklistID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if checklist.OrganizationID != orgID {
		return nil, fmt.Errorf("checklist %s: %w", checklistID, ErrPermissionDenied)
	}

	schema := make(map[string][]entity.TaskField)
	for _, item := range checklist.Items {
		if _, done := schema[item.TaskID]; done {
			continue
		}
		fields, err := s.repos.Template.FieldsForTask(ctx, item.TaskID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		schema[item.TaskID] = fields
	}
	return &ChecklistDetail{Checklist: checklist, FieldSchema: schema}, nil
}

// recountChecklist refreshes the counters and derives the status under the
// checklist row lock held by the caller.
func recountChecklist(ctx context.Context, tx *repository.Repositories, checklist *entity.Checklist, userID string, now time.Time) error {
	completed, err := tx.Checklist.CountCompletedItems(ctx, checklist.ID)
	if err != nil {
		return mapRepoErr(err)
	}
	checklist.CompletedItems = int(completed)
	checklist.CompletionPercentage = entity.Percentage(checklist.CompletedItems, checklist.TotalItems)

	switch {
	case checklist.TotalItems > 0 && checklist.CompletedItems == checklist.TotalItems:
		// Late completion overwrites overdue.
		checklist.Status = entity.ChecklistStatusCompleted
		checklist.CompletedAt = &now
		checklist.CompletedBy = userID
	case checklist.Status == entity.ChecklistStatusPending:
		// First activity moves a pending instance along.
		checklist.Status = entity.ChecklistStatusInProgress
	}
	checklist.UpdatedAt = now
	return mapRepoErr(tx.Checklist.UpdateChecklist(ctx, checklist))
}

// ----- field value coercion -----

// fieldVisible evaluates the show_if guard against the item's recorded
// answers. Fields without a guard are always visible.
func fieldVisible(field *entity.TaskField, answers map[string]string) (bool, error) {
	cond, err := field.ShowIfCond()
	if err != nil {
		return false, err
	}
	if cond == nil {
		return true, nil
	}
	answer, answered := answers[cond.FieldID]
	return answered && answer == cond.Value, nil
}

// coerceValue checks a submitted value against the field type and returns
// the normalized JSON payload, the observed string form and, for numeric
// types, the parsed number. A non-empty msg is a per-field diagnostic; a
// non-nil error means the template itself is corrupt.
func coerceValue(field *entity.TaskField, raw json.RawMessage) (normalized json.RawMessage, observed string, numeric *float64, msg string, err error) {
	observed = entity.RawValueString(raw)

	switch field.FieldType {
	case entity.FieldTypeNumber, entity.FieldTypeTemperature:
		n, perr := strconv.ParseFloat(observed, 64)
		if perr != nil {
			return nil, observed, nil, "expected a decimal number", nil
		}
		numeric = &n
		normalized, _ = json.Marshal(n)
		observed = strconv.FormatFloat(n, 'f', -1, 64)
		return normalized, observed, numeric, "", nil

	case entity.FieldTypeYesNo:
		if observed != "yes" && observed != "no" {
			return nil, observed, nil, `expected "yes" or "no"`, nil
		}
		normalized, _ = json.Marshal(observed)
		return normalized, observed, nil, "", nil

	case entity.FieldTypeDropdown:
		opts, oerr := field.OptionList()
		if oerr != nil || len(opts) == 0 {
			return nil, observed, nil, "", fmt.Errorf("dropdown field %s has no options: %w", field.ID, ErrFatal)
		}
		for _, opt := range opts {
			if observed == opt {
				normalized, _ = json.Marshal(observed)
				return normalized, observed, nil, "", nil
			}
		}
		return nil, observed, nil, "value is not one of the configured options", nil

	case entity.FieldTypePhoto:
		u, perr := url.Parse(observed)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			return nil, observed, nil, "expected the URL of an uploaded photo", nil
		}
		normalized, _ = json.Marshal(observed)
		return normalized, observed, nil, "", nil

	case entity.FieldTypeText:
		if field.IsRequired && observed == "" {
			return nil, observed, nil, "required field must not be empty", nil
		}
		normalized, _ = json.Marshal(observed)
		return normalized, observed, nil, "", nil

	case entity.FieldTypeRepeatingGroup:
		// Repeating groups carry an array of row objects; stored as-is.
		var rows []json.RawMessage
		if jerr := json.Unmarshal(raw, &rows); jerr != nil {
			return nil, observed, nil, "expected an array of group rows", nil
		}
		return raw, observed, nil, "", nil
	}

	return nil, observed, nil, "", fmt.Errorf("field %s has unknown type %q: %w", field.ID, field.FieldType, ErrFatal)
}

// applyRules enforces min/max bounds as validation failures. Bounds paired
// with create_defect_if=out_of_range are deliberately not rejected here:
// such answers pass schema validation and are promoted to defects instead.
func applyRules(rules *entity.ValidationRules, observed string, numeric *float64) string {
	if rules == nil || rules.CreateDefectIf == entity.DefectIfOutOfRange {
		return ""
	}
	if numeric != nil {
		if rules.Min != nil && *numeric < *rules.Min {
			return fmt.Sprintf("value %s is below the minimum %v", observed, *rules.Min)
		}
		if rules.Max != nil && *numeric > *rules.Max {
			return fmt.Sprintf("value %s is above the maximum %v", observed, *rules.Max)
		}
	}
	return ""
}
