package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/phuslu/log"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"drivechat/internal/models"
	"drivechat/pkg/extract"
)

// ErrNotAuthenticated marks Drive responses rejected for credential
// reasons. The CLI shows a credentials hint when it sees it.
var ErrNotAuthenticated = errors.New("drive access denied")

// SupportedMimeTypes lists the file types the loader downloads.
// Google Docs are exported as plain text rather than downloaded.
var SupportedMimeTypes = []string{
	"text/plain",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.google-apps.document",
}

const (
	mimeGoogleDoc = "application/vnd.google-apps.document"
	mimeFolder    = "application/vnd.google-apps.folder"
	mimePDF       = "application/pdf"

	listPageSize = 100
)

type LoaderConfig struct {
	CredentialsPath string
	RateLimit       float64 // requests per second
	Endpoint        string
	HTTPClient      *http.Client
	OnProgress      func(name string)
}

type Loader struct {
	config  LoaderConfig
	svc     *drive.Service
	limiter *rate.Limiter
}

func NewWithConfig(ctx context.Context, config LoaderConfig) (*Loader, error) {
	if config.RateLimit == 0 {
		config.RateLimit = 5 // stay well inside the per-user API quota
	}

	var opts []option.ClientOption
	switch {
	case config.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	case config.CredentialsPath != "":
		data, err := os.ReadFile(config.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	default:
		return nil, errors.New("google credentials are required")
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	return &Loader{
		config:  config,
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func New(ctx context.Context, credentialsPath string) (*Loader, error) {
	return NewWithConfig(ctx, LoaderConfig{CredentialsPath: credentialsPath})
}

func mimeFilter() string {
	clauses := make([]string, 0, len(SupportedMimeTypes))
	for _, mt := range SupportedMimeTypes {
		clauses = append(clauses, fmt.Sprintf("mimeType='%s'", mt))
	}
	return strings.Join(clauses, " or ")
}

// ListDocuments returns the supported files in folderID. An empty
// folderID lists supported files across the whole drive.
func (l *Loader) ListDocuments(ctx context.Context, folderID string) ([]*drive.File, error) {
	query := fmt.Sprintf("trashed=false and (%s)", mimeFilter())
	if folderID != "" {
		query = fmt.Sprintf("trashed=false and '%s' in parents and (%s)", folderID, mimeFilter())
	}

	var files []*drive.File
	pageToken := ""
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := l.svc.Files.List().
			Q(query).
			Fields("nextPageToken", "files(id, name, mimeType, modifiedTime)").
			PageSize(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, wrapAPIError(err, folderID)
		}
		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return files, nil
}

// Download fetches a file's content as text. Google Docs are exported
// as plain text, PDFs run through the PDF extractor, everything else is
// read raw with invalid UTF-8 dropped.
func (l *Loader) Download(ctx context.Context, file *drive.File) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var resp *http.Response
	var err error
	if file.MimeType == mimeGoogleDoc {
		resp, err = l.svc.Files.Export(file.Id, "text/plain").Context(ctx).Download()
	} else {
		resp, err = l.svc.Files.Get(file.Id).Context(ctx).Download()
	}
	if err != nil {
		return "", fmt.Errorf("failed to download document %s: %w", file.Id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to download document %s: %w", file.Id, err)
	}

	if file.MimeType == mimePDF {
		return extract.FromPDF(data)
	}
	return extract.SanitizeUTF8(string(data)), nil
}

// LoadDocuments lists and downloads up to maxDocs files from folderID.
// Files that fail to download are skipped with a warning.
func (l *Loader) LoadDocuments(ctx context.Context, folderID string, maxDocs int) ([]models.Document, error) {
	files, err := l.ListDocuments(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if maxDocs > 0 && len(files) > maxDocs {
		files = files[:maxDocs]
	}

	documents := make([]models.Document, 0, len(files))
	for _, file := range files {
		if l.config.OnProgress != nil {
			l.config.OnProgress(file.Name)
		}
		content, err := l.Download(ctx, file)
		if err != nil {
			log.Warn().Err(err).Str("name", file.Name).Msg("failed to download document, skipping")
			continue
		}
		documents = append(documents, models.Document{
			ID:       file.Id,
			Name:     file.Name,
			Source:   "google_drive",
			MimeType: file.MimeType,
			Content:  content,
			Metadata: map[string]interface{}{
				"id":       file.Id,
				"name":     file.Name,
				"mimeType": file.MimeType,
				"source":   "google_drive",
			},
		})
	}
	return documents, nil
}

func wrapAPIError(err error, folderID string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("folder %s not found: check the ID and share the folder with the service account", folderID)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w, check the service account credentials: %v", ErrNotAuthenticated, err)
		}
	}
	return fmt.Errorf("failed to list documents: %w", err)
}
