package twitter

// userJSON is the subset of an X user object the adapter reads.
type userJSON struct {
	IDStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

// blockListResponse is one page of GET /1.1/blocks/list.json.
type blockListResponse struct {
	Users         []userJSON `json:"users"`
	NextCursor    int64      `json:"next_cursor"`
	NextCursorStr string     `json:"next_cursor_str"`
}
