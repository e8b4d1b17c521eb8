package cmd

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rxreader/internal/apihandlers"
)

// serveCmd starts the HTTP API: submit a job, poll its status.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rxreader HTTP API server",
	Long: `Starts an HTTP server exposing job submission and status polling.
Submitted jobs are processed by the worker process ("rxreader worker").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		router := gin.Default()

		apiHandler := apihandlers.NewAPIHandler(appInstance.Jobs)
		v1 := router.Group("/api/v1")
		{
			prescriptions := v1.Group("/prescriptions")
			{
				prescriptions.POST("", apiHandler.SubmitPrescriptionHandler)
				prescriptions.GET("/:id", apiHandler.GetJobStatusHandler)
			}
		}

		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		addr := appInstance.Config.Server.Address
		log.WithField("addr", addr).Info("starting API server")
		return router.Run(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
