package api

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"time"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/query"
	"github.com/JakeFAU/board-crawler/internal/storage/memory"
)

// ExampleServer_findPost shows a title lookup against the /v1/posts endpoint.
func ExampleServer_findPost() {
	store := memory.NewPostStore()
	at := time.Date(2024, 12, 29, 21, 0, 0, 0, time.UTC)
	_ = store.Upsert(context.Background(), board.Post{
		Author:   "alice",
		PostedAt: &at,
		Title:    "[討論] example",
		Body:     "body",
	})

	srv := httptest.NewServer(NewServer(query.New(store, nil), nil).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/v1/posts?title=%5B%E8%A8%8E%E8%AB%96%5D%20example")
	if err != nil {
		fmt.Println("request failed:", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(resp.StatusCode)
	fmt.Print(string(body))
	// Output:
	// 200
	// {"title":"[討論] example","content":"body","comments":[]}
}
