// attach.go: reference database attachment for enriched queries
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// Reference database aliases used by the enriched query engine. The
// attach order is fixed so capability checks and detach order are
// predictable. AliasEBirdPack is used by the regional filter, which
// attaches one pack at a time.
const (
	AliasIOC       = "ioc"
	AliasPatLevin  = "patlevin"
	AliasAvibase   = "avibase"
	AliasEBirdPack = "ebird_pack"
)

var aliasPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// AttachSpec names one reference database file for attachment.
type AttachSpec struct {
	Alias string
	Path  string
}

// Attached is the set of reference database aliases live on a session
// connection. Enrichment SQL is built against this capability set, so a
// missing reference file degrades columns to null instead of failing
// the query.
type Attached map[string]bool

// Has reports whether the alias was attached.
func (a Attached) Has(alias string) bool {
	return a[alias]
}

// AttachManager attaches reference databases to a session connection.
// SQLite scopes ATTACH to a single connection, so every statement that
// expects the aliases must run on the same *sql.Conn.
type AttachManager struct {
	specs []AttachSpec
}

// NewAttachManager creates an attach manager over an ordered set of
// reference database specs.
func NewAttachManager(specs ...AttachSpec) *AttachManager {
	return &AttachManager{specs: specs}
}

// ReferenceSpecs builds the standard attach list from the configured
// reference database paths. Unconfigured entries are omitted.
func ReferenceSpecs(settings *conf.Settings) []AttachSpec {
	var specs []AttachSpec
	if settings.References.IOC != "" {
		specs = append(specs, AttachSpec{Alias: AliasIOC, Path: settings.References.IOC})
	}
	if settings.References.PatLevin != "" {
		specs = append(specs, AttachSpec{Alias: AliasPatLevin, Path: settings.References.PatLevin})
	}
	if settings.References.Avibase != "" {
		specs = append(specs, AttachSpec{Alias: AliasAvibase, Path: settings.References.Avibase})
	}
	return specs
}

// Attach issues ATTACH DATABASE for each spec whose file exists on disk.
// Missing files are skipped with a debug log so enrichment degrades
// instead of failing. The returned set names the aliases that are live
// on the connection.
func (am *AttachManager) Attach(ctx context.Context, conn *sql.Conn) (Attached, error) {
	attached := make(Attached, len(am.specs))

	for _, spec := range am.specs {
		if !aliasPattern.MatchString(spec.Alias) {
			am.detach(context.WithoutCancel(ctx), conn, attached)
			return nil, errors.Newf("invalid reference database alias %q", spec.Alias).
				Component("datastore").
				Category(errors.CategoryValidation).
				Context("operation", "attach").
				Build()
		}

		if _, err := os.Stat(spec.Path); err != nil {
			getLogger().Debug("Reference database not available, skipping",
				"alias", spec.Alias,
				"path", spec.Path,
				"error", err)
			continue
		}

		// The alias cannot be a bind parameter, but it is validated above.
		query := fmt.Sprintf("ATTACH DATABASE ? AS %s", spec.Alias)
		if _, err := conn.ExecContext(ctx, query, spec.Path); err != nil {
			am.detach(context.WithoutCancel(ctx), conn, attached)
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "attach").
				Context("alias", spec.Alias).
				Build()
		}
		attached[spec.Alias] = true
	}

	return attached, nil
}

// Detach issues DETACH DATABASE in reverse attach order. Errors are
// logged and never raised so cleanup always completes.
func (am *AttachManager) Detach(ctx context.Context, conn *sql.Conn, attached Attached) {
	am.detach(ctx, conn, attached)
}

func (am *AttachManager) detach(ctx context.Context, conn *sql.Conn, attached Attached) {
	for i := len(am.specs) - 1; i >= 0; i-- {
		spec := am.specs[i]
		if !attached.Has(spec.Alias) {
			continue
		}
		query := fmt.Sprintf("DETACH DATABASE %s", spec.Alias)
		if _, err := conn.ExecContext(ctx, query); err != nil {
			getLogger().Warn("Failed to detach reference database",
				"alias", spec.Alias,
				"error", err)
		}
		delete(attached, spec.Alias)
	}
}

// WithAttached acquires a dedicated connection, attaches the reference
// databases, runs fn, and always detaches and releases the connection on
// every exit path. The deferred detach runs on a context stripped of
// cancellation, so a cancelled request never returns a connection to
// the pool with reference databases still attached.
func (am *AttachManager) WithAttached(ctx context.Context, store Interface, fn func(conn *sql.Conn, attached Attached) error) error {
	conn, err := store.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var attached Attached
	if store.Dialect() == "sqlite" {
		attached, err = am.Attach(ctx, conn)
		if err != nil {
			return err
		}
		defer am.detach(context.WithoutCancel(ctx), conn, attached)
	} else {
		attached = Attached{}
	}

	return fn(conn, attached)
}
