package http

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
	"github.com/samirrijal/geodash/internal/pkg/table"
	"github.com/samirrijal/geodash/internal/pkg/telemetry"
)

// overlayLimit bounds how many markers the dashboard map receives.
const overlayLimit = 200

type loginPage struct {
	Next             string
	Email            string
	RegistrationOpen bool
}

type registerPage struct {
	Email       string
	DisplayName string
}

type dashboardPage struct {
	Filter      domain.RecordFilter
	Query       string
	Table       *table.Table
	Total       int
	PrevURL     string
	NextURL     string
	Charts      []domain.Chart
	View        domain.MapView
	Overlay     *geojson.FeatureCollection
	AskLocation bool
}

type recordFormPage struct {
	Editing bool
	ID      string
	Version int
	Record  domain.RecordInput
}

type recordDetailPage struct {
	Record  *domain.Record
	Media   []domain.Media
	CanEdit bool
	MaxMB   int64
}

// LoginPageHandler shows the sign-in form.
func LoginPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionFrom(c) != nil {
			return c.Redirect("/", fiber.StatusSeeOther)
		}
		return render(c, deps, fiber.StatusOK, "login", view{
			Title:  "Sign in",
			Notice: noticeFor(c.Query("notice")),
			Page:   loginPage{Next: safeNext(c.Query("next")), RegistrationOpen: deps.Auth.RegistrationOpen()},
		})
	}
}

// LoginFormHandler signs in from the HTML form. A failed attempt re-renders
// the form with the same message for unknown emails and wrong passwords.
func LoginFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		email := c.FormValue("email")
		next := safeNext(c.FormValue("next"))
		sess, err := deps.Auth.Login(c.UserContext(), email, c.FormValue("password"))
		if err != nil {
			status, _, msg := classify(err)
			if status >= fiber.StatusInternalServerError {
				return pageError(c, err)
			}
			return render(c, deps, status, "login", view{
				Title: "Sign in",
				Error: msg,
				Page:  loginPage{Next: next, Email: email, RegistrationOpen: deps.Auth.RegistrationOpen()},
			})
		}
		deps.setSessionCookie(c, sess)
		return c.Redirect(next, fiber.StatusSeeOther)
	}
}

// LogoutFormHandler ends the session and returns to the login page.
func LogoutFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sess := sessionFrom(c); sess != nil {
			if err := deps.Auth.Logout(c.UserContext(), sess.ID); err != nil {
				return pageError(c, err)
			}
		}
		deps.clearSessionCookie(c)
		return c.Redirect("/login?notice=signed-out", fiber.StatusSeeOther)
	}
}

// RegisterPageHandler shows the registration form to admins, or to anyone
// when self-service registration is enabled.
func RegisterPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !canRegister(deps, sessionFrom(c)) {
			return renderError(c, fiber.StatusForbidden, "Registration is closed.")
		}
		return render(c, deps, fiber.StatusOK, "register", view{Title: "Register", Page: registerPage{}})
	}
}

// RegisterFormHandler creates the account submitted by the form.
func RegisterFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := sessionFrom(c)
		in := usecases.RegisterInput{
			Email:       c.FormValue("email"),
			DisplayName: c.FormValue("display_name"),
			Password:    c.FormValue("password"),
			Role:        domain.Role(c.FormValue("role")),
		}
		if _, err := deps.Auth.Register(c.UserContext(), actor, in); err != nil {
			status, _, msg := classify(err)
			if status >= fiber.StatusInternalServerError || status == fiber.StatusForbidden {
				return pageError(c, err)
			}
			if errors.Is(err, domain.ErrConflict) {
				msg = "An account with this email already exists."
			}
			return render(c, deps, status, "register", view{
				Title: "Register",
				Error: msg,
				Page:  registerPage{Email: in.Email, DisplayName: in.DisplayName},
			})
		}
		if actor != nil {
			return c.Redirect("/?notice=user-created", fiber.StatusSeeOther)
		}
		return c.Redirect("/login?notice=registered", fiber.StatusSeeOther)
	}
}

func canRegister(deps *Dependencies, actor *domain.Session) bool {
	if actor != nil {
		return actor.Role == domain.RoleAdmin
	}
	return deps.Auth.RegistrationOpen()
}

// DashboardHandler renders the map, charts and the filtered table. The
// listing, the chart set and the map markers are loaded concurrently; every
// request runs its own query, so an empty result always renders the empty
// state rather than an earlier page.
func DashboardHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := sessionFrom(c)
		scope := sess.Scope()
		f, err := parseFilter(c)
		if err != nil {
			return pageError(c, err)
		}
		f, err = usecases.NormalizeFilter(f)
		if err != nil {
			return pageError(c, err)
		}

		var (
			page    *domain.RecordPage
			charts  []domain.Chart
			markers *domain.RecordPage
		)
		spanCtx, span := telemetry.StartSpan(c.UserContext(), telemetry.SpanDashboard)
		defer span.End()
		g, ctx := errgroup.WithContext(spanCtx)
		g.Go(func() error {
			var err error
			page, err = deps.Records.List(ctx, scope, f)
			return err
		})
		g.Go(func() error {
			var err error
			charts, err = deps.Charts.Charts(ctx, scope)
			return err
		})
		g.Go(func() error {
			mf := f
			mf.Offset, mf.Limit = 0, overlayLimit
			var err error
			markers, err = deps.Records.List(ctx, scope, mf)
			return err
		})
		if err := g.Wait(); err != nil {
			return pageError(c, err)
		}

		t, err := table.Build(page.Records, splitList(c.Query("columns")), "")
		if err != nil {
			return pageError(c, err)
		}

		prev, next := pageLinks(c, page)
		return render(c, deps, fiber.StatusOK, "dashboard", view{
			Title:  "Dashboard",
			Notice: noticeFor(c.Query("notice")),
			Page: dashboardPage{
				Filter:      f,
				Query:       filterQuery(f),
				Table:       t,
				Total:       page.Total,
				PrevURL:     prev,
				NextURL:     next,
				Charts:      charts,
				View:        deps.Maps.View(sess.Geolocation, markers.Records),
				Overlay:     deps.Maps.Overlay(markers.Records),
				AskLocation: sess.Geolocation == nil,
			},
		})
	}
}

// filterQuery re-encodes a filter for export and paging links.
func filterQuery(f domain.RecordFilter) string {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.OwnerOnly {
		q.Set("mine", "true")
	}
	if f.Sort != "" && f.Sort != domain.SortUpdated {
		q.Set("sort", string(f.Sort))
	}
	if b := f.Bounds; b != nil {
		q.Set("bbox", strings.Join([]string{
			strconv.FormatFloat(b.MinLon, 'f', -1, 64), strconv.FormatFloat(b.MinLat, 'f', -1, 64),
			strconv.FormatFloat(b.MaxLon, 'f', -1, 64), strconv.FormatFloat(b.MaxLat, 'f', -1, 64),
		}, ","))
	}
	return q.Encode()
}

func pageLinks(c *fiber.Ctx, p *domain.RecordPage) (prev, next string) {
	base := c.Context().QueryArgs()
	link := func(offset int) string {
		q := url.Values{}
		base.VisitAll(func(k, v []byte) { q.Set(string(k), string(v)) })
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		return "/?" + q.Encode()
	}
	if p.Offset > 0 {
		prev = link(max(p.Offset-p.Limit, 0))
	}
	if p.Offset+p.Limit < p.Total {
		next = link(p.Offset + p.Limit)
	}
	return prev, next
}

func noticeFor(key string) string {
	switch key {
	case "signed-out":
		return "You have been signed out."
	case "registered":
		return "Account created. You can sign in now."
	case "user-created":
		return "User created."
	case "deleted":
		return "Record deleted."
	case "uploaded":
		return "Image uploaded. Thumbnails appear once processing finishes."
	}
	return ""
}

// recordInputFromForm reads the record form fields.
func recordInputFromForm(c *fiber.Ctx) (domain.RecordInput, bool) {
	in := domain.RecordInput{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
		Visibility:  domain.Visibility(c.FormValue("visibility")),
		Tags:        splitList(c.FormValue("tags")),
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(c.FormValue("lat")), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(c.FormValue("lon")), 64)
	in.Lat, in.Lon = lat, lon
	return in, errLat == nil && errLon == nil
}

const badCoordinates = "Latitude and longitude must be numbers."

func inputFromRecord(r *domain.Record) domain.RecordInput {
	return domain.RecordInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Lat:         r.Location.Lat,
		Lon:         r.Location.Lon,
		Visibility:  r.Visibility,
		Tags:        r.Tags,
	}
}

// NewRecordPageHandler shows an empty record form.
func NewRecordPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usecases.CanCreate(sessionFrom(c).Scope()) {
			return renderError(c, fiber.StatusForbidden, "Your role cannot create records.")
		}
		return render(c, deps, fiber.StatusOK, "record_form", view{
			Title: "New record",
			Page:  recordFormPage{Record: domain.RecordInput{Visibility: domain.VisibilityPrivate}},
		})
	}
}

// CreateRecordFormHandler stores the submitted record.
func CreateRecordFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in, ok := recordInputFromForm(c)
		formErr := func(status int, msg string) error {
			return render(c, deps, status, "record_form", view{Title: "New record", Error: msg, Page: recordFormPage{Record: in}})
		}
		if !ok {
			return formErr(fiber.StatusBadRequest, badCoordinates)
		}
		r, err := deps.Records.Create(c.UserContext(), sessionFrom(c).Scope(), in)
		if err != nil {
			status, _, msg := classify(err)
			if status != fiber.StatusBadRequest {
				return pageError(c, err)
			}
			return formErr(status, msg)
		}
		return c.Redirect("/records/"+r.ID, fiber.StatusSeeOther)
	}
}

// RecordPageHandler shows one record with its images.
func RecordPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return renderRecord(c, deps, fiber.StatusOK, "", noticeFor(c.Query("notice")))
	}
}

func renderRecord(c *fiber.Ctx, deps *Dependencies, status int, errMsg, notice string) error {
	scope := sessionFrom(c).Scope()
	r, err := deps.Records.Get(c.UserContext(), scope, c.Params("id"))
	if err != nil {
		return pageError(c, err)
	}
	media, err := deps.Media.List(c.UserContext(), scope, r.ID)
	if err != nil {
		return pageError(c, err)
	}
	return render(c, deps, status, "record_detail", view{
		Title:  r.Title,
		Error:  errMsg,
		Notice: notice,
		Page: recordDetailPage{
			Record:  r,
			Media:   media,
			CanEdit: usecases.CanEdit(scope, r),
			MaxMB:   deps.Media.Limits().MaxBytes >> 20,
		},
	})
}

// EditRecordPageHandler shows the form prefilled with the stored record.
func EditRecordPageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope := sessionFrom(c).Scope()
		r, err := deps.Records.Get(c.UserContext(), scope, c.Params("id"))
		if err != nil {
			return pageError(c, err)
		}
		if !usecases.CanEdit(scope, r) {
			return renderError(c, fiber.StatusForbidden, "You cannot edit this record.")
		}
		return render(c, deps, fiber.StatusOK, "record_form", view{
			Title: "Edit " + r.Title,
			Page:  recordFormPage{Editing: true, ID: r.ID, Version: r.Version, Record: inputFromRecord(r)},
		})
	}
}

// UpdateRecordFormHandler saves an edit. The form carries the version it was
// rendered from, so a concurrent edit is reported instead of overwritten.
func UpdateRecordFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		version, _ := strconv.Atoi(c.FormValue("expected_version"))
		in, ok := recordInputFromForm(c)
		formErr := func(status int, msg string) error {
			return render(c, deps, status, "record_form", view{
				Title: "Edit record",
				Error: msg,
				Page:  recordFormPage{Editing: true, ID: id, Version: version, Record: in},
			})
		}
		if !ok {
			return formErr(fiber.StatusBadRequest, badCoordinates)
		}
		_, err := deps.Records.Update(c.UserContext(), sessionFrom(c).Scope(), id, in, version)
		switch {
		case err == nil:
			return c.Redirect("/records/"+id, fiber.StatusSeeOther)
		case errors.Is(err, domain.ErrConflict):
			return formErr(fiber.StatusConflict, "This record was changed by someone else. Reload it and apply your edit again.")
		case errors.Is(err, domain.ErrInvalidInput):
			_, _, msg := classify(err)
			return formErr(fiber.StatusBadRequest, msg)
		}
		return pageError(c, err)
	}
}

// DeleteRecordFormHandler removes a record and returns to the dashboard.
func DeleteRecordFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Records.Delete(c.UserContext(), sessionFrom(c).Scope(), c.Params("id")); err != nil {
			return pageError(c, err)
		}
		return c.Redirect("/?notice=deleted", fiber.StatusSeeOther)
	}
}

// UploadMediaFormHandler attaches an image from the record page. Rejected
// files re-render the page with the reason and the matching status.
func UploadMediaFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		name, data, err := readUpload(c, deps.Media.Limits().MaxBytes)
		if err == nil {
			_, err = deps.Media.Upload(c.UserContext(), sessionFrom(c).Scope(), id, name, data)
		}
		if err != nil {
			status, _, msg := classify(err)
			switch status {
			case fiber.StatusBadRequest, fiber.StatusUnsupportedMediaType, fiber.StatusRequestEntityTooLarge:
				if errors.Is(err, domain.ErrUnsupportedMedia) {
					msg = "That file is not a JPEG, PNG or WebP image."
				} else if errors.Is(err, domain.ErrTooLarge) {
					msg = "That image is too large."
				} else if msg == domain.ErrInvalidInput.Error() {
					msg = "Choose an image to upload."
				}
				return renderRecord(c, deps, status, msg, "")
			}
			return pageError(c, err)
		}
		return c.Redirect("/records/"+id+"?notice=uploaded", fiber.StatusSeeOther)
	}
}

// SetCoverFormHandler makes the posted media the record's cover.
func SetCoverFormHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := deps.Media.SetCover(c.UserContext(), sessionFrom(c).Scope(), id, c.FormValue("media_id")); err != nil {
			return pageError(c, err)
		}
		return c.Redirect("/records/"+id, fiber.StatusSeeOther)
	}
}
