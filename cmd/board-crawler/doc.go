// Command board-crawler crawls a PTT board into a document store and serves
// read-only queries over what it stored.
//
// Usage:
//
//	board-crawler [--config path] crawl [--serve]
//	board-crawler [--config path] menu
//
// Configuration is read from the optional YAML file and from CRAWLER_*
// environment variables; a .env file in the working directory is loaded
// first.
package main
