package deploy

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"codemother/internal/apperrors"
	"codemother/internal/logging"
	"codemother/internal/models"
	"codemother/internal/utils"

	"github.com/rs/zerolog"
)

const (
	deployKeyLength   = 6
	deployKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxKeyAttempts    = 20
)

// Builder compiles a project directory.
type Builder interface {
	Build(ctx context.Context, dir string) error
}

// Deployment describes one published version.
type Deployment struct {
	Key     string
	Version int
	Dir     string
	URL     string
	Commit  string
}

// Deployer publishes generated sources under {DeployRoot}/{key}/V{version}.
type Deployer struct {
	OutputRoot string
	DeployRoot string
	Host       string
	builder    Builder
	snapshots  *Snapshotter
	log        zerolog.Logger
}

func NewDeployer(outputRoot, deployRoot, host string, builder Builder) *Deployer {
	return &Deployer{
		OutputRoot: outputRoot,
		DeployRoot: deployRoot,
		Host:       strings.TrimRight(host, "/"),
		builder:    builder,
		snapshots:  NewSnapshotter(),
		log:        logging.Component("deploy"),
	}
}

// Deploy publishes app.Version of the app's sources. app.DeployKey must already be set.
// Vue projects are built first and only dist/ is published.
func (d *Deployer) Deploy(ctx context.Context, app *models.App) (*Deployment, error) {
	if app == nil || app.DeployKey == "" {
		return nil, apperrors.Validation("deploy key is required")
	}
	version := app.Version
	if version < 1 {
		version = 1
	}
	src := filepath.Join(d.OutputRoot, app.CodeGenType.DirName(app.ID))
	if !utils.DirectoryExists(src) {
		return nil, apperrors.NotFound("generated code for app " + fmt.Sprint(app.ID))
	}

	publish := src
	if app.CodeGenType.NeedsBuild() {
		if d.builder == nil {
			return nil, fmt.Errorf("%w: no project builder configured", apperrors.ErrConfiguration)
		}
		if err := d.builder.Build(ctx, src); err != nil {
			return nil, fmt.Errorf("build before deploy: %w", err)
		}
		publish = filepath.Join(src, "dist")
	}

	commit, err := d.snapshots.Snapshot(src, version)
	if err != nil {
		// the snapshot is a record only; publishing goes ahead
		d.log.Warn().Err(err).Uint("app_id", app.ID).Msg("source snapshot failed")
	}

	target := filepath.Join(d.DeployRoot, app.DeployKey, fmt.Sprintf("V%d", version))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("prepare deploy dir: %w", err)
	}
	if err := utils.CopyDir(publish, target, ".git", "node_modules"); err != nil {
		return nil, fmt.Errorf("copy deployment: %w", err)
	}

	dep := &Deployment{
		Key:     app.DeployKey,
		Version: version,
		Dir:     target,
		URL:     fmt.Sprintf("%s/%s/V%d/", d.Host, app.DeployKey, version),
		Commit:  commit,
	}
	d.log.Info().Uint("app_id", app.ID).Str("url", dep.URL).Str("commit", commit).Msg("app deployed")
	return dep, nil
}

// NewDeployKey returns a random six-character key for which exists reports false.
func NewDeployKey(exists func(string) bool) (string, error) {
	max := big.NewInt(int64(len(deployKeyAlphabet)))
	for range maxKeyAttempts {
		var b strings.Builder
		for range deployKeyLength {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(deployKeyAlphabet[n.Int64()])
		}
		key := b.String()
		if exists == nil || !exists(key) {
			return key, nil
		}
	}
	return "", fmt.Errorf("no free deploy key after %d attempts", maxKeyAttempts)
}
