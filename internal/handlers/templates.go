package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"wanderplan/internal/models"
	"wanderplan/internal/planner"
	"wanderplan/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates parses the embedded page templates into r.
func LoadTemplates(r *gin.Engine, deps *Deps) {
	tmpl := template.Must(template.New("").Funcs(templateFuncs(deps)).ParseFS(templateFS, "templates/*.html"))
	r.SetHTMLTemplate(tmpl)
}

func templateFuncs(deps *Deps) template.FuncMap {
	return template.FuncMap{
		"jsonify": func(v interface{}) template.JS {
			bytes, _ := json.Marshal(v)
			return template.JS(bytes)
		},
		"add": func(a, b int) int {
			return a + b
		},
		"photoURL": func(photo *string) string {
			return services.PhotoURL(deps.Config.StorageBaseURL, photo)
		},
		"dateStatus": func(date models.Date) string {
			return strings.ToLower(string(planner.Status(date, deps.Clock())))
		},
		"daysUntil": func(date models.Date) int {
			return planner.DaysUntil(date, deps.Clock())
		},
		"canToggle": func(date models.Date) bool {
			return planner.CanToggle(date, deps.Clock())
		},
		"exceeds": func(day int, d models.Destination) bool {
			return planner.ExceedsDuration(day, d)
		},
		"money":      formatMoney,
		"errorFor":   errorFor,
		"longDate":   func(date models.Date) string { return date.Format("Mon, Jan 2 2006") },
		"pluralDays": pluralDays,
	}
}

func errorFor(errs interface{}, field string) string {
	if fe, ok := errs.(planner.FieldErrors); ok {
		return fe[field]
	}
	return ""
}

// formatMoney renders an amount with thousands separators and two decimals.
func formatMoney(amount models.Decimal) string {
	s := fmt.Sprintf("%.2f", float64(amount))
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	whole, fraction, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + fraction
}

func pluralDays(n int) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d day", n)
	}
	return fmt.Sprintf("%d days", n)
}
