// Package pages holds the data loaders behind the "cached" and
// "simple-cached" pages.
//
// Each loader reads the forced-refresh flag from the request query, asks the
// cache for the page payload and merges the cache status (fromCache,
// cacheAge, nextRefresh) into the JSON it returns. Rendering the page is the
// host framework's job.
package pages
