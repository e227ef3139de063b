package storage

import (
	"context"
	"encoding/base64"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gcsapi "google.golang.org/api/storage/v1"

	"postcraft/internal/adapters/storage/gcs"
	"postcraft/internal/adapters/storage/gdrive"
	"postcraft/internal/adapters/storage/localfs"
	"postcraft/internal/config"
	"postcraft/internal/pkg/errors"
)

// NewProvider builds the configured provider. An empty provider name, or a
// provider missing its required settings, yields DESTINATION_NOT_CONFIGURED
// so callers can decide whether publishing is needed at all.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, notConfigured("no storage provider configured")

	case "localfs":
		if cfg.LocalRoot == "" {
			return nil, notConfigured("localfs requires STORAGE_LOCAL_ROOT")
		}
		return localfs.New(cfg.LocalRoot, cfg.LocalBaseURL), nil

	case "gcs":
		return newGCSProvider(ctx, cfg)

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown storage provider: %s", cfg.Provider)
	}
}

func newGCSProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	if cfg.GCSBucket == "" {
		return nil, notConfigured("gcs requires GOOGLE_CLOUD_STORAGE_BUCKET")
	}

	creds, err := gcsCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gcsapi.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeDestinationNotConfigured, "storage.gcs", "create gcs client")
	}

	return gcs.NewClient(svc, gcs.Options{
		Bucket:     cfg.GCSBucket,
		BaseURL:    cfg.GCSBaseURL,
		PublicRead: cfg.GCSPublicRead,
	}), nil
}

// gcsCredentials prefers inline base64 JSON, then a key file, then the
// ambient application default credentials.
func gcsCredentials(ctx context.Context, cfg config.StorageConfig) (*google.Credentials, error) {
	const op = "storage.gcs"
	scope := gcsapi.DevstorageReadWriteScope

	var raw []byte
	switch {
	case cfg.GCSCredentialsBase64 != "":
		b, err := base64.StdEncoding.DecodeString(cfg.GCSCredentialsBase64)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeDestinationNotConfigured, op, "decode base64 credentials")
		}
		raw = b
	case cfg.GCSCredentialsFile != "":
		b, err := os.ReadFile(cfg.GCSCredentialsFile)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeDestinationNotConfigured, op, "read credentials file")
		}
		raw = b
	default:
		creds, err := google.FindDefaultCredentials(ctx, scope)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeDestinationNotConfigured, op, "no gcs credentials")
		}
		return creds, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, scope)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeDestinationNotConfigured, op, "parse credentials")
	}
	return creds, nil
}

func newGDriveProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	if cfg.DriveClientID == "" || cfg.DriveClientSecret == "" || cfg.DriveRefreshToken == "" {
		return nil, notConfigured("gdrive requires GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
	}

	conf := DriveOAuthConfig(cfg.DriveClientID, cfg.DriveClientSecret, "")
	tok := &oauth2.Token{RefreshToken: cfg.DriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeDestinationNotConfigured, "storage.gdrive", "create drive client")
	}

	return gdrive.NewClient(srv, cfg.DriveFolderID, cfg.DrivePublic), nil
}

// DriveOAuthConfig is shared with the storage-auth command so both sides
// request the same scope.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func notConfigured(msg string) error {
	e := errors.New(errors.CodeDestinationNotConfigured, msg)
	e.Op = "storage.new"
	return e
}
