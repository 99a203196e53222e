// Package builtin ships the stock connectors: data sources (static records,
// HTTP, RSS), processors (HTML extraction, expression filter and mapping),
// and destinations (CSV, spreadsheet, HTTP delivery, log sink).
package builtin

import (
	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/storage"
)

// RegisterAll registers every builtin connector. Export destinations write
// their files through store.
func RegisterAll(r *connector.Registry, store storage.Storage) {
	r.Register("static_source", func() connector.Connector { return NewStaticSource() })
	r.Register("http_fetch", func() connector.Connector { return NewHTTPFetch() })
	r.Register("rss_feed", func() connector.Connector { return NewRSSFeed() })
	r.Register("html_extract", func() connector.Connector { return NewHTMLExtract() })
	r.Register("expr_filter", func() connector.Connector { return NewExprFilter() })
	r.Register("field_map", func() connector.Connector { return NewFieldMap() })
	r.Register("csv_export", func() connector.Connector { return NewCSVExport(store) })
	r.Register("excel_export", func() connector.Connector { return NewExcelExport(store) })
	r.Register("http_post", func() connector.Connector { return NewHTTPPost() })
	r.Register("log_destination", func() connector.Connector { return NewLogDestination() })
}
