// Package backup exposes a webhook for triggering database backups out of
// band, mounted on the monitoring server.
package backup

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Exporter writes a consistent copy of the node database to a directory.
type Exporter interface {
	Backup(ctx context.Context, outputDir string) error
}

// Handler accepts requests to initiate a new database backup.
func Handler(bk Exporter, outputDir string) func(http.ResponseWriter, *http.Request) {
	log := logrus.WithField("prefix", "db")

	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Creating database backup from HTTP webhook")

		if err := bk.Backup(r.Context(), outputDir); err != nil {
			log.WithError(err).Error("Could not create backup")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprint(w, "OK"); err != nil {
			log.WithError(err).Error("Could not write response")
		}
	}
}
