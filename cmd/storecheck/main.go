package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
)

func main() {
	_ = godotenv.Load()

	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	publishURL := strings.TrimSpace(os.Getenv("PUBLISH_BASE_URL"))

	if redisURL == "" {
		log.Fatal("REDIS_URL is required")
	}

	failed := false
	check := func(name string, fn func(ctx context.Context) (string, error)) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		detail, err := fn(ctx)
		if err != nil {
			failed = true
			log.Printf("%s error: %v", name, err)
			return
		}
		log.Printf("%s ok (%s) %s", name, time.Since(start).Round(time.Millisecond), detail)
	}

	check("redis", func(ctx context.Context) (string, error) {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return "", err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return "", err
		}
		games, err := rdb.ZCard(ctx, "chess:games").Result()
		if err != nil {
			return "", err
		}
		tournaments, err := rdb.ZCard(ctx, "chess:tournaments").Result()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("games=%d tournaments=%d", games, tournaments), nil
	})

	if dbURL == "" {
		log.Println("DATABASE_URL not set; skipping archive check")
	} else {
		check("postgres", func(ctx context.Context) (string, error) {
			db, err := sql.Open("postgres", dbURL)
			if err != nil {
				return "", err
			}
			defer db.Close()
			if err := db.PingContext(ctx); err != nil {
				return "", err
			}
			var n int64
			err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chess_games_archive`).Scan(&n)
			if err != nil {
				return "archive table missing", nil
			}
			return fmt.Sprintf("archived=%d", n), nil
		})
	}

	if publishURL == "" {
		log.Println("PUBLISH_BASE_URL not set; skipping publish endpoint check")
	} else {
		check("publish", func(ctx context.Context) (string, error) {
			req := fasthttp.AcquireRequest()
			resp := fasthttp.AcquireResponse()
			defer fasthttp.ReleaseRequest(req)
			defer fasthttp.ReleaseResponse(resp)
			req.SetRequestURI(strings.TrimRight(publishURL, "/") + "/")
			req.Header.SetMethod(fasthttp.MethodHead)
			deadline, _ := ctx.Deadline()
			if err := fasthttp.DoDeadline(req, resp, deadline); err != nil {
				return "", err
			}
			return fmt.Sprintf("status=%d", resp.StatusCode()), nil
		})
	}

	if failed {
		os.Exit(1)
	}
}
