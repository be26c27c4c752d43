// Command unwind-aggregator persists daily risk snapshots for every active
// user and prints a user's stored risk history.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := Execute(); err != nil {
		logrus.WithError(err).Error("unwind-aggregator failed")
		os.Exit(1)
	}
}
