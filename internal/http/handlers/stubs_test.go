package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/providers/replicate"
	"pictoria-server/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubModelRow struct {
	id           int64
	userID       string
	modelID      string
	modelName    string
	gender       string
	status       domain.TrainingStatus
	trainingTime *float64
	version      *string
}

type stubUsageEvent struct {
	userID    string
	eventType string
	success   bool
}

// stubSQL emulates the credits and models tables in memory, including the
// conditional decrement and the monotonic status guard, so handler tests can
// assert on real state transitions.
type stubSQL struct {
	mu      sync.Mutex
	credits map[string]*domain.Credit
	models  map[string]*stubModelRow
	emails  map[string]string
	usage   []stubUsageEvent
	nextID  int64
}

func newStubSQL() *stubSQL {
	return &stubSQL{
		credits: make(map[string]*domain.Credit),
		models:  make(map[string]*stubModelRow),
		emails:  make(map[string]string),
	}
}

func commandTag(verb string, rows int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", verb, rows))
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch query {
	case sqlinline.QUpdateModelSucceeded:
		userID, modelID := args[0].(string), args[1].(string)
		next := domain.TrainingStatus(args[2].(string))
		row, ok := s.models[modelID]
		if !ok || row.userID != userID || row.status.Rank() > next.Rank() {
			return commandTag("UPDATE", 0), nil
		}
		row.status = next
		t := args[3].(float64)
		v := args[4].(string)
		row.trainingTime = &t
		row.version = &v
		return commandTag("UPDATE", 1), nil
	case sqlinline.QUpdateModelStatus:
		userID, modelID := args[0].(string), args[1].(string)
		next := domain.TrainingStatus(args[2].(string))
		row, ok := s.models[modelID]
		if !ok || row.userID != userID || row.status.Rank() > next.Rank() {
			return commandTag("UPDATE", 0), nil
		}
		row.status = next
		return commandTag("UPDATE", 1), nil
	case sqlinline.QInsertUsageEvent:
		s.usage = append(s.usage, stubUsageEvent{
			userID:    args[0].(string),
			eventType: args[1].(string),
			success:   args[2].(bool),
		})
		return commandTag("INSERT", 1), nil
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unsupported exec: %.40s", query)
	}
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch query {
	case sqlinline.QSelectCredits:
		c, ok := s.credits[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		cc := *c
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = cc.UserID
			*dest[1].(*int) = cc.ImageGenerationCount
			*dest[2].(*int) = cc.ModelTrainingCount
			return nil
		}}
	case sqlinline.QConsumeImageCredit:
		c, ok := s.credits[args[0].(string)]
		if !ok || c.ImageGenerationCount <= 0 {
			return stubRow{}
		}
		c.ImageGenerationCount--
		remaining := c.ImageGenerationCount
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = remaining
			return nil
		}}
	case sqlinline.QConsumeTrainingCredit:
		c, ok := s.credits[args[0].(string)]
		if !ok || c.ModelTrainingCount <= 0 {
			return stubRow{}
		}
		c.ModelTrainingCount--
		remaining := c.ModelTrainingCount
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = remaining
			return nil
		}}
	case sqlinline.QRefundTrainingCredit:
		c, ok := s.credits[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		c.ModelTrainingCount++
		remaining := c.ModelTrainingCount
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = remaining
			return nil
		}}
	case sqlinline.QRefundImageCredit:
		c, ok := s.credits[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		c.ImageGenerationCount++
		remaining := c.ImageGenerationCount
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = remaining
			return nil
		}}
	case sqlinline.QInsertModel:
		s.nextID++
		row := &stubModelRow{
			id:        s.nextID,
			userID:    args[0].(string),
			modelID:   args[1].(string),
			modelName: args[2].(string),
			gender:    args[3].(string),
			status:    domain.TrainingStatus(args[4].(string)),
		}
		s.models[row.modelID] = row
		id := row.id
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = id
			return nil
		}}
	case sqlinline.QSelectModelName:
		userID, modelID := args[0].(string), args[1].(string)
		row, ok := s.models[modelID]
		if !ok || row.userID != userID {
			return stubRow{}
		}
		name := row.modelName
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = name
			return nil
		}}
	case sqlinline.QSelectUserEmail:
		email, ok := s.emails[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = email
			return nil
		}}
	default:
		return stubRow{scan: func(dest ...any) error {
			return fmt.Errorf("unsupported query_row: %.40s", query)
		}}
	}
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unsupported query: %.40s", query)
}

type fakeProvider struct {
	mu              sync.Mutex
	secret          string
	owner           string
	createModelErr  error
	trainingErr     error
	runErr          error
	runOutput       []string
	createdModels   []string
	trainings       []replicate.TrainingRequest
	runCalls        int
	deletedModels   []string
	deletedVersions []string
}

func (f *fakeProvider) CreateModel(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createModelErr != nil {
		return f.createModelErr
	}
	f.createdModels = append(f.createdModels, name)
	return nil
}

func (f *fakeProvider) CreateTraining(ctx context.Context, req replicate.TrainingRequest) (*replicate.Training, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trainingErr != nil {
		return nil, f.trainingErr
	}
	f.trainings = append(f.trainings, req)
	return &replicate.Training{ID: "training-1", Status: "starting"}, nil
}

func (f *fakeProvider) Run(ctx context.Context, ref string, input map[string]any) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.runOutput, nil
}

func (f *fakeProvider) DeleteModel(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedModels = append(f.deletedModels, name)
	return nil
}

func (f *fakeProvider) DeleteModelVersion(ctx context.Context, name, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedVersions = append(f.deletedVersions, name+":"+version)
	return nil
}

func (f *fakeProvider) WebhookSecret(ctx context.Context) (string, error) {
	if f.secret == "" {
		return "", errors.New("no secret configured")
	}
	return f.secret, nil
}

func (f *fakeProvider) Owner() string {
	if f.owner == "" {
		return "pictoria"
	}
	return f.owner
}

type fakeStore struct {
	mu         sync.Mutex
	removeErr  error
	uploads    []string
	removed    []string
	signedURLs []string
}

func (f *fakeStore) CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error) {
	return "https://storage.test/upload/" + bucket + "/" + path, nil
}

func (f *fakeStore) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "https://storage.test/signed/" + bucket + "/" + path
	f.signedURLs = append(f.signedURLs, url)
	return url, nil
}

func (f *fakeStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, bucket+"/"+path)
	return nil
}

func (f *fakeStore) Remove(ctx context.Context, bucket, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, bucket+"/"+path)
	return nil
}

type sentMail struct {
	to        string
	modelName string
	status    domain.TrainingStatus
	locale    string
}

type fakeMailer struct {
	mu      sync.Mutex
	sendErr error
	sent    []sentMail
}

func (f *fakeMailer) SendTrainingStatus(ctx context.Context, to, modelName string, status domain.TrainingStatus, locale string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{to: to, modelName: modelName, status: status, locale: locale})
	return nil
}
