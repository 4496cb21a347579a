package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/watt-toolkit/rawhttpd/internal/request"
	"github.com/watt-toolkit/rawhttpd/internal/router"
	"github.com/watt-toolkit/rawhttpd/internal/server"
)

var errYourProblem = errors.New("your request honestly kinda sucked")

func main() {
	table, err := router.NewTable([]router.Route{
		{Pattern: "/", Handler: func(_ context.Context, _ *request.Request) (any, error) {
			return "<html><body><h1>Success!</h1><p>Your request was an absolute banger.</p></body></html>", nil
		}},
		{Pattern: "/echo/<word>", Handler: func(_ context.Context, req *request.Request) (any, error) {
			return map[string]string{"word": req.Params["word"]}, nil
		}},
		{Pattern: "/yourproblem", Handler: func(_ context.Context, _ *request.Request) (any, error) {
			return nil, errYourProblem
		}},
	}, map[int]router.Handler{
		404: func(_ context.Context, _ *request.Request) (any, error) {
			return "<html><body><h1>Not found</h1></body></html>", nil
		},
		500: func(_ context.Context, _ *request.Request) (any, error) {
			return "<html><body><h1>Internal Server Error</h1><p>Okay, you know what? This one is on me.</p></body></html>", nil
		},
	})
	if err != nil {
		log.Fatalf("compiling routes: %v", err)
	}

	srv, err := server.Serve(table, server.DefaultConfig())
	if err != nil {
		log.Fatalf("starting server: %v", err)
	}
	defer srv.Close()
	log.Println("server started on", srv.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("server gracefully stopped")
}
