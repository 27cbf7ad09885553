package handler

import (
	"fmt"
	"time"

	"github.com/99minutos/account-service/internal/core/domain"
	"github.com/99minutos/account-service/internal/core/ports"
)

const timeLayout = "2006-01-02T15:04:05Z"

func toAccountResponse(a *domain.Account) accountResponse {
	resp := accountResponse{
		ID:                  a.ID,
		Nickname:            a.Nickname,
		Email:               a.Email,
		FirstName:           a.FirstName,
		LastName:            a.LastName,
		Bio:                 a.Bio,
		ProfilePictureURL:   a.ProfilePictureURL,
		Role:                string(a.Role),
		EmailVerified:       a.EmailVerified,
		IsLocked:            a.IsLocked,
		FailedLoginAttempts: a.FailedLoginAttempts,
		CreatedAt:           formatTime(a.CreatedAt),
		UpdatedAt:           formatTime(a.UpdatedAt),
		Links:               accountLinks{Self: "/users/" + a.ID},
	}
	if a.LastLoginAt != nil {
		resp.LastLoginAt = formatTime(*a.LastLoginAt)
	}
	return resp
}

func toListResponse(page *ports.ListAccountsResult) listAccountsResponse {
	items := make([]accountResponse, 0, len(page.Items))
	for _, a := range page.Items {
		items = append(items, toAccountResponse(a))
	}

	links := listLinks{Self: pageLink(page.Skip, page.Limit)}
	if int64(page.Skip+page.Limit) < page.Total {
		links.Next = pageLink(page.Skip+page.Limit, page.Limit)
	}
	if page.Skip > 0 {
		links.Prev = pageLink(max(page.Skip-page.Limit, 0), page.Limit)
	}

	return listAccountsResponse{
		Items: items,
		Total: page.Total,
		Skip:  page.Skip,
		Limit: page.Limit,
		Links: links,
	}
}

func pageLink(skip, limit int) string {
	return fmt.Sprintf("/users?skip=%d&limit=%d", skip, limit)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (r registerRequest) toInput(role domain.Role) ports.CreateAccountInput {
	return ports.CreateAccountInput{
		Email:             r.Email,
		Password:          r.Password,
		Nickname:          r.Nickname,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Bio:               r.Bio,
		ProfilePictureURL: r.ProfilePictureURL,
		Role:              role,
	}
}

func (r updateAccountRequest) toInput() ports.UpdateAccountInput {
	in := ports.UpdateAccountInput{
		Nickname:          r.Nickname,
		Email:             r.Email,
		Password:          r.Password,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Bio:               r.Bio,
		ProfilePictureURL: r.ProfilePictureURL,
	}
	if r.Role != nil {
		role := domain.Role(*r.Role)
		in.Role = &role
	}
	return in
}
