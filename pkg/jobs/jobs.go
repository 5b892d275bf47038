package jobs

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/resolver"
)

// Locator maps archive tags to a registered camera.
type Locator interface {
	ByTags(ctx context.Context, developerTag, projectTag, camera string) (*resolver.Target, error)
}

// Store persists render requests and enforces their lifecycle.
type Store struct {
	db      *sql.DB
	locator Locator
	reader  *archive.Reader
	listDir string
	now     func() time.Time
}

// NewStore returns a Store writing image list files under listDir. Only
// cameras known to locator can be requested.
func NewStore(db *sql.DB, locator Locator, reader *archive.Reader, listDir string) *Store {
	return &Store{db: db, locator: locator, reader: reader, listDir: listDir, now: time.Now}
}

// Enqueue validates req, resolves its image list once and persists it as queued.
// When no image matches, nothing is persisted and NoImagesMatched is returned.
func (s *Store) Enqueue(ctx context.Context, req models.RenderRequest) (*models.RenderRequest, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}

	target, err := s.locator.ByTags(ctx, req.DeveloperTag, req.ProjectTag, req.Camera)
	if err != nil {
		return nil, err
	}
	req.DeveloperTag, req.ProjectTag, req.Camera = target.DeveloperTag(), target.ProjectTag(), target.CameraName()

	images, err := s.reader.ListImages(req.DeveloperTag, req.ProjectTag, req.Camera)
	if err != nil {
		return nil, err
	}
	matched := archive.FilterByDateHourRange(images, req.StartDate, req.EndDate, req.StartHour, req.EndHour)
	if len(matched) == 0 {
		return nil, apperr.New(apperr.NoImagesMatched, "no images between %s %s:00 and %s %s:59",
			req.StartDate, req.StartHour, req.EndDate, req.EndHour)
	}

	req.ID = uuid.New().String()
	req.Status = models.StatusQueued
	req.FilteredImageCount = len(matched)
	req.CreatedAt = s.now().UTC()
	req.UpdatedAt = req.CreatedAt
	req.Error = ""
	req.Result = nil

	paths := make([]string, len(matched))
	for i, ts := range matched {
		paths[i] = s.reader.ImagePath(req.DeveloperTag, req.ProjectTag, req.Camera, ts)
	}
	listFile, err := s.writeListFile(req.ID, paths)
	if err != nil {
		return nil, err
	}
	req.ListFile = listFile

	body, err := json.Marshal(req)
	if err != nil {
		os.Remove(listFile)
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO render_requests (id, type, developer_tag, status, body) VALUES (?, ?, ?, ?, ?)",
		req.ID, string(req.Type), req.DeveloperTag, string(req.Status), string(body))
	if err != nil {
		os.Remove(listFile)
		return nil, fmt.Errorf("failed to insert render request: %w", err)
	}
	return &req, nil
}

func normalize(req *models.RenderRequest) error {
	switch req.Type {
	case models.RequestVideo, models.RequestPhoto:
	case "":
		req.Type = models.RequestVideo
	default:
		return apperr.New(apperr.ValidationError, "unknown request type %q", req.Type)
	}
	if req.DeveloperTag == "" || req.ProjectTag == "" || req.Camera == "" {
		return apperr.New(apperr.ValidationError, "developerTag, projectTag and camera are required")
	}
	for _, tag := range []string{req.DeveloperTag, req.ProjectTag, req.Camera} {
		if !safeTag(tag) {
			return apperr.New(apperr.ValidationError, "invalid archive tag %q", tag)
		}
	}
	if req.StartHour == "" {
		req.StartHour = "00"
	}
	if req.EndHour == "" {
		req.EndHour = "23"
	}
	if !digits(req.StartDate, 8) || !digits(req.EndDate, 8) {
		return apperr.New(apperr.ValidationError, "startDate and endDate must be YYYYMMDD")
	}
	if !digits(req.StartHour, 2) || !digits(req.EndHour, 2) {
		return apperr.New(apperr.ValidationError, "startHour and endHour must be two-digit hours")
	}
	if req.FrameRate < 0 {
		return apperr.New(apperr.ValidationError, "frameRate must not be negative")
	}
	return nil
}

// safeTag rejects tags that would address a directory other than their own.
func safeTag(tag string) bool {
	return tag != "." && tag != ".." && !strings.ContainsAny(tag, `/\`) && !strings.Contains(tag, "..")
}

func digits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *Store) writeListFile(id string, paths []string) (string, error) {
	if err := os.MkdirAll(s.listDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create list directory: %w", err)
	}
	listFile, err := filepath.Abs(filepath.Join(s.listDir, id+".txt"))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(paths, "\n")+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write image list: %w", err)
	}
	return listFile, nil
}

// ReadListFile returns the image paths recorded for a request, in order.
func ReadListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image list: %w", err)
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image list: %w", err)
	}
	return paths, nil
}

// TransitionOption adds data to a request as it changes state.
type TransitionOption func(*models.RenderRequest)

// WithResult attaches the produced artifact.
func WithResult(res *models.RenderResult) TransitionOption {
	return func(r *models.RenderRequest) { r.Result = res }
}

// WithError records why a request failed.
func WithError(err error) TransitionOption {
	return func(r *models.RenderRequest) {
		if err != nil {
			r.Error = err.Error()
		}
	}
}

// Transition moves a request to status `to`. Leaving a terminal state, or any
// step the lifecycle does not allow, fails with InvalidTransition.
func (s *Store) Transition(ctx context.Context, id string, to models.RequestStatus, opts ...TransitionOption) (*models.RenderRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(req.Status, to) {
		return nil, apperr.New(apperr.InvalidTransition, "request %s cannot move from %s to %s", id, req.Status, to)
	}

	req.Status = to
	req.UpdatedAt = s.now().UTC()
	for _, opt := range opts {
		opt(req)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}
	var errStr sql.NullString
	if req.Error != "" {
		errStr = sql.NullString{String: req.Error, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE render_requests SET status = ?, body = ?, error = ? WHERE id = ?",
		string(to), string(body), errStr, id); err != nil {
		return nil, fmt.Errorf("failed to update render request status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit render request status: %w", err)
	}
	return req, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRequest(ctx context.Context, q rowQuerier, id string) (*models.RenderRequest, error) {
	var body string
	err := q.QueryRowContext(ctx, "SELECT body FROM render_requests WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "render request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render request: %w", err)
	}
	var req models.RenderRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return nil, fmt.Errorf("failed to decode render request %s: %w", id, err)
	}
	return &req, nil
}

// Get returns one request by id.
func (s *Store) Get(ctx context.Context, id string) (*models.RenderRequest, error) {
	return getRequest(ctx, s.db, id)
}

// NextQueued returns the oldest queued request of any type, or nil when the
// queue is empty. It does not change the request.
func (s *Store) NextQueued(ctx context.Context) (*models.RenderRequest, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM render_requests WHERE status = ? ORDER BY seq ASC LIMIT 1",
		string(models.StatusQueued)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil // Queue is empty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next queued request: %w", err)
	}
	return s.Get(ctx, id)
}

// List returns requests in submission order, optionally for one developer.
func (s *Store) List(ctx context.Context, developerTag string) ([]models.RenderRequest, error) {
	query := "SELECT body FROM render_requests"
	var args []any
	if developerTag != "" {
		query += " WHERE developer_tag = ?"
		args = append(args, developerTag)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query render requests: %w", err)
	}
	defer rows.Close()

	out := make([]models.RenderRequest, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan render request row: %w", err)
		}
		var req models.RenderRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return nil, fmt.Errorf("failed to decode render request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CountByStatus returns how many requests are in a state.
func (s *Store) CountByStatus(ctx context.Context, status models.RequestStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM render_requests WHERE status = ?", string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count render requests: %w", err)
	}
	return n, nil
}

// RecoverInterrupted fails every request left in starting by a previous process.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM render_requests WHERE status = ? ORDER BY seq", string(models.StatusStarting))
	if err != nil {
		return 0, fmt.Errorf("failed to query interrupted requests: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.Transition(ctx, id, models.StatusFailed, WithError(fmt.Errorf("interrupted"))); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
