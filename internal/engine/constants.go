package engine

// walFileName is the current write-ahead log's file name within the data
// directory. Archived logs are retired alongside it as "wal.log.<ts>".
const walFileName = "wal.log"
