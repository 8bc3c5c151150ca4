package vmpaysync

import (
	"context"
	"net/url"
	"strconv"
)

// CashlessEndpoint is the paginated transaction-fact feed.
const CashlessEndpoint = "cashless_facts"

// FetchWindow drains the cashless feed for one date window, one page at a
// time. The cursor advances by one after every full page; an empty page or a
// page shorter than pageSize terminates the loop. A fixed delay runs between
// successful pages. There is no mid-stream resume: a retried window starts
// again from page 1.
func (c *Client) FetchWindow(ctx context.Context, w Window, pageSize int) ([]Record, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var all []Record
	page := 1
	for {
		params := url.Values{}
		params.Set("start_date", w.StartParam())
		params.Set("end_date", w.EndParam())
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(pageSize))

		records, err := c.FetchPage(ctx, CashlessEndpoint, params)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}
		all = append(all, records...)
		if len(records) < pageSize {
			break
		}
		page++
		c.sleep(interPageDelay)
	}
	return all, nil
}
