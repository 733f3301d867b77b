package api

import (
	"github.com/go-chi/chi/v5"

	"coursio/internal/constants"
)

// SetupRoutes wires every API route onto the router.
func SetupRoutes(r *chi.Mux, s *Server) {
	// Public routes
	r.Group(func(r chi.Router) {
		r.Post("/api/login", s.Login)
		r.Post("/api/register", s.RegisterClient)
		r.Post("/api/register/agent", s.RegisterAgent)
		r.Post("/api/register/partner", s.RegisterPartner)
		r.Post("/api/comments", s.PostComment)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.Config.SessionSecret, s.Store))

		// Authenticated user routes
		r.Get("/api/user/profile", s.GetProfile)
		r.Get("/api/user/requests", s.GetMyRequests)
		r.Post("/api/user/requests", s.SubmitRequest)
		r.Get("/api/user/request/{id}", s.GetRequestDetails)
		r.Get("/api/user/wallet", s.GetWallet)
		r.Post("/api/user/wallet/recharge", s.RechargeWallet)
		r.Get("/api/user/withdrawals", s.GetMyWithdrawals)
		r.Post("/api/user/withdrawals", s.RequestWithdrawal)
		r.Get("/api/user/referrals", s.GetReferrals)
		r.Get("/api/user/referral-link", s.GetReferralLink)
		r.Get("/api/user/referral-qr", s.GetReferralQR)
		r.Get("/api/user/messages", s.GetMyMessages)
		r.Post("/api/user/messages", s.SendMessage)

		// Agent routes
		r.Route("/api/agent", func(r chi.Router) {
			r.Use(RoleMiddleware(constants.ROLE_AGENT))
			r.Get("/requests", s.GetAssignedRequests)
			r.Post("/request/{id}/start", s.StartRequest)
			r.Post("/request/{id}/close", s.CloseRequest)
		})

		// Admin routes
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(RoleMiddleware(constants.ROLE_ADMIN))

			r.Get("/users", s.ListUsers)
			r.Post("/user/{id}/approve", s.ApproveUser)
			r.Post("/user/{id}/role", s.SetUserRole)
			r.Delete("/user/{id}", s.DeleteUser)

			r.Get("/requests", s.ListRequests)
			r.Post("/request/{id}/assign", s.AssignRequest)
			r.Post("/request/{id}/reject", s.RejectRequest)
			r.Post("/request/{id}/close", s.CloseRequest)

			r.Get("/config", s.GetConfig)
			r.Put("/config", s.UpdateConfig)

			r.Get("/withdrawals", s.ListWithdrawals)
			r.Post("/withdrawal/{id}/approve", s.ApproveWithdrawal)
			r.Post("/withdrawal/{id}/reject", s.RejectWithdrawal)

			r.Get("/export/ledger", s.ExportLedger)
			r.Get("/export/requests", s.ExportRequests)

			r.Get("/messages", s.ListMessages)
			r.Post("/message/{id}/read", s.MarkMessageRead)
			r.Get("/comments/pending", s.PendingComments)
			r.Post("/comment/{id}/moderate", s.ModerateComment)
			r.Get("/activity", s.RecentActivity)
		})
	})
}
