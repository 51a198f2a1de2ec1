package routes

import (
	"net/http"

	"github.com/classarena/classarena/handlers"
	"github.com/classarena/classarena/middleware"
	"github.com/classarena/classarena/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

type Handlers struct {
	Tournament  *handlers.TournamentHandler
	Participant *handlers.ParticipantHandler
	Match       *handlers.MatchHandler
	WebSocket   *handlers.WebSocketHandler
}

func InitRoutes(auth *middleware.Authenticator, h Handlers) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Route("/tournaments", func(r chi.Router) {
		r.Use(auth.Authenticate)

		// Просмотр доступен всем аутентифицированным
		r.Get("/{tournamentID}", h.Tournament.GetTournamentHandler)
		r.Get("/classroom/{classroomID}", h.Tournament.ListByClassroomHandler)

		// Управление турниром — только учитель или админ
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authorize(models.RoleTeacher, models.RoleAdmin))

			r.Post("/", h.Tournament.CreateTournamentHandler)
			r.Post("/{tournamentID}/participants", h.Participant.AddParticipantHandler)
			r.Post("/{tournamentID}/participants/bulk", h.Participant.AddParticipantsBulkHandler)
			r.Delete("/{tournamentID}/participants/{participantID}", h.Participant.RemoveParticipantHandler)
			r.Post("/{tournamentID}/shuffle", h.Participant.ShuffleSeedsHandler)
			r.Post("/{tournamentID}/bracket", h.Tournament.BuildBracketHandler)
			r.Post("/{tournamentID}/cancel", h.Tournament.CancelTournamentHandler)
		})

		r.Route("/match/{matchID}", func(r chi.Router) {
			r.Get("/", h.Match.GetMatchHandler)
			// Ответы подают участники, остальные операции матча — управление
			r.Post("/answer", h.Match.SubmitAnswerHandler)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(models.RoleTeacher, models.RoleAdmin))
				r.Post("/start", h.Match.StartMatchHandler)
				r.Post("/next-question", h.Match.NextQuestionHandler)
				r.Post("/complete", h.Match.CompleteMatchHandler)
			})
		})
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	return router
}
