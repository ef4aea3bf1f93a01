package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/accounts"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/presentation/api/auth"
)

func registerHandler(log zerolog.Logger, svc accounts.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "register")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		values, err := formValues(r, multipartMemory, "name", "email", "password", "role")
		if err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: Request body is empty", errBadRequest), "")
			return
		}

		reg := accounts.Registration{
			Name:     values["name"],
			Email:    values["email"],
			Password: values["password"],
			Role:     values["role"],
		}

		file, header, err := formFile(r, "avatar")
		if err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}
		if file != nil {
			defer file.Close()
			reg.Avatar = &accounts.Upload{Filename: header.Filename, Content: file}
		}

		session, err := svc.Register(ctx, reg)
		if err != nil {
			writeErr(w, requestLogger, err, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusCreated, session)
	}
}

func loginHandler(log zerolog.Logger, svc accounts.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "login")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		values, err := formValues(r, multipartMemory, "email", "password")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		session, err := svc.Login(ctx, values["email"], values["password"])
		if errors.Is(err, accounts.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "Please provide email and password")
			return
		}
		if err != nil {
			writeErr(w, requestLogger, err, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}

func forgotPasswordHandler(log zerolog.Logger, svc accounts.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "forgot-password")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		values, err := formValues(r, multipartMemory, "email")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		err = svc.ForgotPassword(ctx, values["email"])
		if errors.Is(err, accounts.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Email not found")
			return
		}
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to send email. Check backend logs.")
			return
		}

		writeJSON(w, http.StatusOK, messageResponse{Message: "Reset link sent successfully"})
	}
}

func resetPasswordHandler(log zerolog.Logger, svc accounts.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "reset-password")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		req := resetPasswordRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, requestLogger, accounts.ErrInvalidToken, "")
			return
		}

		err = svc.ResetPassword(ctx, req.Token, req.NewPassword)
		if err != nil {
			writeErr(w, requestLogger, err, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
	}
}

func updateProfileHandler(log zerolog.Logger, svc accounts.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "update-profile")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		user, ok := auth.GetUserFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		values, err := formValues(r, multipartMemory, "name")
		if err != nil {
			writeErr(w, requestLogger, err, "")
			return
		}

		var avatar *accounts.Upload
		file, header, err := formFile(r, "avatar")
		if err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}
		if file != nil {
			defer file.Close()
			avatar = &accounts.Upload{Filename: header.Filename, Content: file}
		}

		updated, err := svc.UpdateProfile(ctx, user.ID, values["name"], avatar)
		if err != nil {
			writeErr(w, requestLogger, err, "Update failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated", "user": updated})
	}
}

func changePasswordHandler(log zerolog.Logger, svc accounts.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "change-password")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := logging.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		user, ok := auth.GetUserFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		req := changePasswordRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, requestLogger, fmt.Errorf("%w: %s", errBadRequest, err.Error()), "")
			return
		}

		err = svc.ChangePassword(ctx, user.ID, req.CurrentPassword, req.NewPassword)
		if errors.Is(err, accounts.ErrInvalidPassword) {
			writeError(w, http.StatusUnauthorized, "Incorrect current password")
			return
		}
		if err != nil {
			writeErr(w, requestLogger, err, "Failed to change password")
			return
		}

		writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
	}
}
