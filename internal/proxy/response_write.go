package proxy

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// writeResponse copies status, end-to-end headers and body to the
// downstream writer, flushing after each chunk so unfiltered responses
// still stream.
func writeResponse(gc *gin.Context, resp *http.Response) error {
	dst := gc.Writer.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	removeHopByHop(dst)
	gc.Status(resp.StatusCode)
	gc.Writer.WriteHeaderNow()

	if gc.Request.Method == http.MethodHead {
		return nil
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := gc.Writer.Write(buf[:n]); werr != nil {
				return werr
			}
			gc.Writer.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
