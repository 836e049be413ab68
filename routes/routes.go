package routes

import (
	"irb-review-api/controllers"
	"irb-review-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "IRB Review API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Boards and questionnaire administration
			boards := protected.Group("/boards")
			{
				boards.GET("", controllers.ListBoards)
				boards.GET("/:id", controllers.GetBoard)
				boards.GET("/:id/sections", controllers.GetBoardSections)
				boards.GET("/:id/questions", controllers.GetBoardQuestions)
				boards.GET("/:id/members", controllers.ListBoardMembers)

				// Board lifecycle and membership are platform admin calls
				boards.POST("", middleware.RequireAdmin(), controllers.CreateBoard)
				boards.PUT("/:id", middleware.RequireAdmin(), controllers.UpdateBoard)
				boards.POST("/:id/members", middleware.RequireAdmin(), controllers.AddBoardMember)
				boards.DELETE("/:id/members/:memberId", middleware.RequireAdmin(), controllers.RemoveBoardMember)

				// Section creation is checked in the handler: admin or the
				// board's coordinator.
				boards.POST("/:id/sections", controllers.CreateSection)
			}

			sections := protected.Group("/sections")
			{
				sections.PUT("/:sectionId", controllers.UpdateSection)
				sections.DELETE("/:sectionId", controllers.DeleteSection)
				sections.POST("/:sectionId/questions", controllers.CreateQuestion)
			}

			questions := protected.Group("/questions")
			{
				questions.PUT("/:questionId", controllers.UpdateQuestion)
				questions.DELETE("/:questionId", controllers.DeleteQuestion)
				questions.POST("/:questionId/conditions", controllers.AddQuestionCondition)
				questions.DELETE("/:questionId/conditions/:conditionId", controllers.RemoveQuestionCondition)
			}

			// Submissions and the review workflow
			submissions := protected.Group("/submissions")
			{
				submissions.POST("", controllers.CreateSubmission)
				submissions.GET("", controllers.ListSubmissions)
				submissions.GET("/:id", controllers.GetSubmission)
				submissions.PUT("/:id", controllers.UpdateSubmission)
				submissions.DELETE("/:id", controllers.DeleteSubmission)
				submissions.GET("/:id/history", controllers.GetSubmissionHistory)

				// Questionnaire
				submissions.GET("/:id/visible-questions", controllers.GetQuestionnaire)
				submissions.GET("/:id/responses", controllers.GetResponses)
				submissions.PUT("/:id/responses", controllers.SaveResponses)
				submissions.PUT("/:id/responses/:questionId", controllers.SaveSingleResponse)
				submissions.POST("/:id/responses/:questionId/confirm", controllers.ConfirmResponse)

				// Files
				submissions.POST("/:id/files", controllers.UploadSubmissionFile)
				submissions.GET("/:id/files", controllers.ListSubmissionFiles)
				submissions.GET("/:id/files/:fileId/download", controllers.DownloadSubmissionFile)
				submissions.DELETE("/:id/files/:fileId", controllers.DeleteSubmissionFile)

				// Workflow
				submissions.POST("/:id/submit", controllers.SubmitSubmission)
				submissions.POST("/:id/resubmit", controllers.ResubmitSubmission)
				submissions.POST("/:id/triage", controllers.TriageSubmission)
				submissions.POST("/:id/assign-main", controllers.AssignMainReviewer)
				submissions.POST("/:id/assign-associates", controllers.AssignAssociateReviewers)
				submissions.POST("/:id/reviews", controllers.SubmitReview)
				submissions.GET("/:id/reviews", controllers.ListReviews)
				submissions.POST("/:id/decision", controllers.RecordDecision)
				submissions.GET("/:id/decision", controllers.GetDecision)
				submissions.POST("/:id/ai-prefill", controllers.RunAIPrefill)
			}

			// Dashboards
			dashboard := protected.Group("/dashboard")
			{
				dashboard.GET("/stats", controllers.GetDashboardStats)
				dashboard.GET("/coordinator", controllers.GetCoordinatorDashboard)
				dashboard.GET("/reviewer", controllers.GetReviewerDashboard)
			}

			// Notifications
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", controllers.GetNotifications)
				notifications.GET("/counter", controllers.GetNotificationCounter)
				notifications.PUT("/:id/read", controllers.MarkNotificationRead)
				notifications.PUT("/read-all", controllers.MarkAllNotificationsRead)
			}
		}
	}
}
