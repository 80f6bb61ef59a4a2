// Command churn prepares data, trains and evaluates the churn model,
// publishes artifact bundles and serves predictions.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
