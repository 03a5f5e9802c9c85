package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/courselens-backend/internal/config"
)

// CORS allows the configured origins verbatim plus any origin matching one of
// the configured patterns (preview deployments).
func CORS(cfg config.HTTPConfig) (gin.HandlerFunc, error) {
	allowed := make(map[string]struct{}, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.AllowOriginPattern))
	for _, p := range cfg.AllowOriginPattern {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("cors origin pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if _, ok := allowed[origin]; ok {
				return true
			}
			for _, re := range patterns {
				if re.MatchString(origin) {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}), nil
}
