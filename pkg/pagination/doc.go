// Package pagination provides the cursors used by resources/list, tools/list
// and prompts/list.
//
// A cursor is opaque to clients. Servers produce one with EncodeCursor and
// slice a snapshot with Page:
//
//	tools := reg.Tools()
//	page, next, err := pagination.Page(tools, params.Cursor, pagination.DefaultLimit)
//	if err != nil {
//	    return nil, err // InvalidParams "invalid cursor"
//	}
//	return &protocol.ListToolsResult{Tools: page, NextCursor: next}, nil
//
// A listing ends when NextCursor is empty. Clients that want everything use a
// Collector to follow cursors:
//
//	c := pagination.NewCollector()
//	for c.HasMore {
//	    res, err := client.ListTools(ctx, c.NextCursor)
//	    if err != nil {
//	        return err
//	    }
//	    all = append(all, res.Tools...)
//	    c.Update(len(res.Tools), res.NextCursor)
//	}
package pagination
