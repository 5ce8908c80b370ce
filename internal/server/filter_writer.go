package server

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the downstream response in memory so the filter can
// rewrite it. Once more than limit bytes arrive it spills the buffer to the
// wrapped writer and passes everything else straight through.
type bufferedWriter struct {
	gin.ResponseWriter

	limit   int
	status  int
	started bool
	buf     bytes.Buffer
	spilled bool
}

func newBufferedWriter(w gin.ResponseWriter, limit int) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, limit: limit, status: w.Status()}
}

func (w *bufferedWriter) WriteHeader(code int) {
	if w.spilled {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	if code > 0 && !w.started {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	if w.spilled {
		w.ResponseWriter.WriteHeaderNow()
		return
	}
	w.started = true
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.spilled {
		return w.ResponseWriter.Write(p)
	}
	w.started = true
	if w.limit > 0 && w.buf.Len()+len(p) > w.limit {
		if err := w.spill(); err != nil {
			return 0, err
		}
		return w.ResponseWriter.Write(p)
	}
	return w.buf.Write(p)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *bufferedWriter) spill() error {
	w.spilled = true
	w.ResponseWriter.WriteHeader(w.status)
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

// Flush is deferred until the filter has run, unless the body spilled.
func (w *bufferedWriter) Flush() {
	if w.spilled {
		w.ResponseWriter.Flush()
	}
}

func (w *bufferedWriter) Status() int {
	if w.spilled {
		return w.ResponseWriter.Status()
	}
	return w.status
}

func (w *bufferedWriter) Size() int {
	if w.spilled {
		return w.ResponseWriter.Size()
	}
	if !w.started {
		return -1
	}
	return w.buf.Len()
}

func (w *bufferedWriter) Written() bool {
	if w.spilled {
		return w.ResponseWriter.Written()
	}
	return w.started
}
